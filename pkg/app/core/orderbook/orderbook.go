package orderbook

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// OrderBook holds the resting bids and asks of one market plus its order id
// generator. It is not safe for concurrent use; the owner of the book
// serializes place, cancel and match.
type OrderBook struct {
	Market      common.Hash `json:"market"`
	NextOrderID uint64      `json:"nextOrderId"`
	Bids        BookSide    `json:"bids"`
	Asks        BookSide    `json:"asks"`
}

// NewOrderBook returns an empty book for the given market.
func NewOrderBook(market common.Hash) *OrderBook {
	return &OrderBook{Market: market}
}

// Side returns the book side for s.
func (ob *OrderBook) Side(s Side) (*BookSide, error) {
	switch s {
	case Bid:
		return &ob.Bids, nil
	case Ask:
		return &ob.Asks, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, s)
	}
}

// CanInsert reports whether an order could be appended to the given side:
// the side has room and the id space is not exhausted.
func (ob *OrderBook) CanInsert(s Side) error {
	side, err := ob.Side(s)
	if err != nil {
		return err
	}
	if side.Full() {
		return fmt.Errorf("%w: %s side holds %d orders", ErrOrderBookFull, s, side.Len())
	}
	if ob.NextOrderID == math.MaxUint64 {
		return ErrOrderIDOverflow
	}
	return nil
}

// Insert appends a new order with nothing locked. See InsertLocked.
func (ob *OrderBook) Insert(s Side, owner common.Address, price, amount uint64) (LimitOrder, error) {
	return ob.InsertLocked(s, owner, price, amount, 0)
}

// InsertLocked appends a new order to the side, records the quote escrowed
// for it and assigns it the next order id.
func (ob *OrderBook) InsertLocked(s Side, owner common.Address, price, amount, locked uint64) (LimitOrder, error) {
	if err := ob.CanInsert(s); err != nil {
		return LimitOrder{}, err
	}
	side, _ := ob.Side(s)

	o := LimitOrder{
		Owner:   owner,
		Price:   price,
		Amount:  amount,
		Locked:  locked,
		OrderID: ob.NextOrderID,
	}
	if err := side.push(o); err != nil {
		return LimitOrder{}, err
	}
	ob.NextOrderID++
	return o, nil
}

// Find returns the order with the given id owned by owner.
func (ob *OrderBook) Find(s Side, orderID uint64, owner common.Address) (LimitOrder, bool) {
	side, err := ob.Side(s)
	if err != nil {
		return LimitOrder{}, false
	}
	i := side.index(orderID, func(o LimitOrder) bool { return o.Owner == owner })
	if i < 0 {
		return LimitOrder{}, false
	}
	return *side.At(i), true
}

// Remove deletes exactly the order matching both id and owner. Other orders,
// including ones at the same price, keep their positions.
func (ob *OrderBook) Remove(s Side, orderID uint64, owner common.Address) (LimitOrder, bool) {
	side, err := ob.Side(s)
	if err != nil {
		return LimitOrder{}, false
	}
	i := side.index(orderID, func(o LimitOrder) bool { return o.Owner == owner })
	if i < 0 {
		return LimitOrder{}, false
	}
	return side.removeAt(i), true
}

// PopFront removes the best order of a side.
func (ob *OrderBook) PopFront(s Side) (LimitOrder, bool) {
	side, err := ob.Side(s)
	if err != nil || side.Len() == 0 {
		return LimitOrder{}, false
	}
	return side.removeAt(0), true
}

// SortForMatching puts bids in descending and asks in ascending price order.
// The sort is stable so equal prices keep their placement order.
func (ob *OrderBook) SortForMatching() {
	ob.Bids.sortStable(true)
	ob.Asks.sortStable(false)
}

// Compact removes every zero-amount order from both sides and returns how
// many were dropped.
func (ob *OrderBook) Compact() int {
	return ob.Bids.compact() + ob.Asks.compact()
}

// BestBid returns the highest bid price.
func (ob *OrderBook) BestBid() (uint64, bool) {
	var best uint64
	ok := false
	for _, o := range ob.Bids.orders[:ob.Bids.n] {
		if !ok || o.Price > best {
			best, ok = o.Price, true
		}
	}
	return best, ok
}

// BestAsk returns the lowest ask price.
func (ob *OrderBook) BestAsk() (uint64, bool) {
	var best uint64
	ok := false
	for _, o := range ob.Asks.orders[:ob.Asks.n] {
		if !ok || o.Price < best {
			best, ok = o.Price, true
		}
	}
	return best, ok
}

// Crossed reports whether the best bid is at or above the best ask.
func (ob *OrderBook) Crossed() bool {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	return okBid && okAsk && bid >= ask
}

// BidLevels returns bid price levels sorted high to low.
func (ob *OrderBook) BidLevels() []PriceLevel { return ob.Bids.levels(true) }

// AskLevels returns ask price levels sorted low to high.
func (ob *OrderBook) AskLevels() []PriceLevel { return ob.Asks.levels(false) }

// OrdersOf returns the resting orders of owner on both sides.
func (ob *OrderBook) OrdersOf(owner common.Address) (bids, asks []LimitOrder) {
	for _, o := range ob.Bids.orders[:ob.Bids.n] {
		if o.Owner == owner {
			bids = append(bids, o)
		}
	}
	for _, o := range ob.Asks.orders[:ob.Asks.n] {
		if o.Owner == owner {
			asks = append(asks, o)
		}
	}
	return bids, asks
}

// Clone returns a deep copy. Sides are fixed arrays so a value copy suffices.
func (ob *OrderBook) Clone() *OrderBook {
	cp := *ob
	return &cp
}

// Validate checks the structural invariants of a book loaded from storage.
func (ob *OrderBook) Validate() error {
	seen := make(map[uint64]struct{}, ob.Bids.n+ob.Asks.n)
	for _, side := range []*BookSide{&ob.Bids, &ob.Asks} {
		if side.n > MaxOrders {
			return fmt.Errorf("%w: %d orders", ErrCapacityExceeded, side.n)
		}
		for _, o := range side.orders[:side.n] {
			if o.OrderID >= ob.NextOrderID {
				return fmt.Errorf("order %d not below next order id %d", o.OrderID, ob.NextOrderID)
			}
			if _, dup := seen[o.OrderID]; dup {
				return fmt.Errorf("duplicate order id %d", o.OrderID)
			}
			seen[o.OrderID] = struct{}{}
			if o.Amount == 0 {
				return fmt.Errorf("order %d has zero amount", o.OrderID)
			}
			if o.Amount+o.Filled < o.Amount {
				return fmt.Errorf("order %d filled amount overflows", o.OrderID)
			}
		}
	}
	return nil
}
