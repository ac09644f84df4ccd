package orderbook

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// BookSide is a bounded, insertion-ordered list of resting orders.
// Storage is a fixed array so capacity can never grow past MaxOrders.
type BookSide struct {
	orders [MaxOrders]LimitOrder
	n      int
}

func (s *BookSide) Len() int   { return s.n }
func (s *BookSide) Full() bool { return s.n >= MaxOrders }

// At returns a pointer to the i-th order. Callers may only decrement Amount.
func (s *BookSide) At(i int) *LimitOrder {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("orderbook: index %d out of range [0,%d)", i, s.n))
	}
	return &s.orders[i]
}

// Front returns the first order, or nil if the side is empty.
func (s *BookSide) Front() *LimitOrder {
	if s.n == 0 {
		return nil
	}
	return &s.orders[0]
}

// Orders returns a copy of the resting orders in current order.
func (s *BookSide) Orders() []LimitOrder {
	out := make([]LimitOrder, s.n)
	copy(out, s.orders[:s.n])
	return out
}

func (s *BookSide) push(o LimitOrder) error {
	if s.Full() {
		return ErrOrderBookFull
	}
	s.orders[s.n] = o
	s.n++
	return nil
}

// removeAt removes the i-th order keeping the relative order of the rest.
func (s *BookSide) removeAt(i int) LimitOrder {
	o := s.orders[i]
	copy(s.orders[i:s.n-1], s.orders[i+1:s.n])
	s.n--
	s.orders[s.n] = LimitOrder{}
	return o
}

// index returns the position of the order with the given id and owner.
func (s *BookSide) index(orderID uint64, match func(LimitOrder) bool) int {
	for i := 0; i < s.n; i++ {
		if s.orders[i].OrderID == orderID && match(s.orders[i]) {
			return i
		}
	}
	return -1
}

// sortStable orders the side by price, descending when desc is set.
// Equal prices keep insertion order, which is the time priority of the book.
func (s *BookSide) sortStable(desc bool) {
	live := s.orders[:s.n]
	sort.SliceStable(live, func(i, j int) bool {
		if desc {
			return live[i].Price > live[j].Price
		}
		return live[i].Price < live[j].Price
	})
}

// compact drops zero-amount orders in place.
func (s *BookSide) compact() int {
	w := 0
	for r := 0; r < s.n; r++ {
		if s.orders[r].Amount == 0 {
			continue
		}
		s.orders[w] = s.orders[r]
		w++
	}
	removed := s.n - w
	for i := w; i < s.n; i++ {
		s.orders[i] = LimitOrder{}
	}
	s.n = w
	return removed
}

// levels aggregates resting amount per price, best price first.
func (s *BookSide) levels(desc bool) []PriceLevel {
	byPrice := make(map[uint64]*PriceLevel)
	var prices []uint64
	for _, o := range s.orders[:s.n] {
		lvl, ok := byPrice[o.Price]
		if !ok {
			lvl = &PriceLevel{Price: o.Price}
			byPrice[o.Price] = lvl
			prices = append(prices, o.Price)
		}
		if lvl.Amount+o.Amount < lvl.Amount {
			lvl.Amount = math.MaxUint64
		} else {
			lvl.Amount += o.Amount
		}
		lvl.Orders++
	}
	sort.Slice(prices, func(i, j int) bool {
		if desc {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	out := make([]PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = *byPrice[p]
	}
	return out
}

func (s BookSide) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.orders[:s.n])
}

func (s *BookSide) UnmarshalJSON(data []byte) error {
	var orders []LimitOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return err
	}
	if len(orders) > MaxOrders {
		return fmt.Errorf("%w: %d orders", ErrCapacityExceeded, len(orders))
	}
	*s = BookSide{}
	copy(s.orders[:], orders)
	s.n = len(orders)
	return nil
}
