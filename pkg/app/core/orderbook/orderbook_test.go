package orderbook

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	mkt   = common.HexToHash("0x01")
)

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	ob := NewOrderBook(mkt)

	for i := 0; i < 5; i++ {
		side := Bid
		if i%2 == 1 {
			side = Ask
		}
		o, err := ob.Insert(side, alice, 100, 1)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if o.OrderID != uint64(i) {
			t.Errorf("order %d got id %d", i, o.OrderID)
		}
	}
	if ob.NextOrderID != 5 {
		t.Errorf("next order id = %d, want 5", ob.NextOrderID)
	}
}

func TestCapacityInvariant(t *testing.T) {
	ob := NewOrderBook(mkt)
	for i := 0; i < MaxOrders; i++ {
		if _, err := ob.Insert(Bid, alice, uint64(i+1), 1); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	before := ob.Clone()
	_, err := ob.Insert(Bid, alice, 999, 1)
	if !errors.Is(err, ErrOrderBookFull) {
		t.Fatalf("51st insert err = %v, want ErrOrderBookFull", err)
	}
	if ob.Bids.Len() != MaxOrders {
		t.Errorf("bids = %d, want %d", ob.Bids.Len(), MaxOrders)
	}
	if ob.NextOrderID != before.NextOrderID {
		t.Errorf("rejected insert consumed an id: %d -> %d", before.NextOrderID, ob.NextOrderID)
	}

	// the other side is independent
	if _, err := ob.Insert(Ask, alice, 5, 1); err != nil {
		t.Errorf("ask insert on non-full side: %v", err)
	}
}

func TestIDOverflowFailsClosed(t *testing.T) {
	ob := NewOrderBook(mkt)
	ob.NextOrderID = math.MaxUint64

	if _, err := ob.Insert(Ask, alice, 1, 1); !errors.Is(err, ErrOrderIDOverflow) {
		t.Fatalf("err = %v, want ErrOrderIDOverflow", err)
	}
	if ob.Asks.Len() != 0 {
		t.Errorf("order appended despite id overflow")
	}
}

func TestRemoveMatchesIDAndOwner(t *testing.T) {
	ob := NewOrderBook(mkt)
	a, _ := ob.Insert(Bid, alice, 10, 1)
	b, _ := ob.Insert(Bid, bob, 10, 2)
	c, _ := ob.Insert(Bid, alice, 10, 3)

	if _, ok := ob.Remove(Bid, a.OrderID, bob); ok {
		t.Fatal("removed an order owned by someone else")
	}
	if _, ok := ob.Remove(Ask, a.OrderID, alice); ok {
		t.Fatal("removed an order from the wrong side")
	}

	got, ok := ob.Remove(Bid, a.OrderID, alice)
	if !ok || got != a {
		t.Fatalf("remove = %+v, %v", got, ok)
	}

	orders := ob.Bids.Orders()
	if len(orders) != 2 || orders[0] != b || orders[1] != c {
		t.Errorf("siblings disturbed: %+v", orders)
	}

	if _, ok := ob.Remove(Bid, a.OrderID, alice); ok {
		t.Error("second remove found the order again")
	}
}

func TestSortForMatchingIsStable(t *testing.T) {
	ob := NewOrderBook(mkt)
	first, _ := ob.Insert(Bid, alice, 10, 1)
	low, _ := ob.Insert(Bid, alice, 9, 1)
	second, _ := ob.Insert(Bid, bob, 10, 1)

	a1, _ := ob.Insert(Ask, alice, 12, 1)
	a0, _ := ob.Insert(Ask, bob, 11, 1)
	a2, _ := ob.Insert(Ask, alice, 12, 1)

	ob.SortForMatching()

	bids := ob.Bids.Orders()
	wantBids := []uint64{first.OrderID, second.OrderID, low.OrderID}
	for i, id := range wantBids {
		if bids[i].OrderID != id {
			t.Errorf("bid[%d] = %d, want %d", i, bids[i].OrderID, id)
		}
	}

	asks := ob.Asks.Orders()
	wantAsks := []uint64{a0.OrderID, a1.OrderID, a2.OrderID}
	for i, id := range wantAsks {
		if asks[i].OrderID != id {
			t.Errorf("ask[%d] = %d, want %d", i, asks[i].OrderID, id)
		}
	}
}

func TestCompactDropsZeroAmounts(t *testing.T) {
	ob := NewOrderBook(mkt)
	ob.Insert(Bid, alice, 10, 1)
	ob.Insert(Bid, alice, 10, 2)
	ob.Insert(Ask, alice, 12, 3)

	ob.Bids.At(0).Amount = 0
	ob.Asks.At(0).Amount = 0

	if n := ob.Compact(); n != 2 {
		t.Errorf("compact removed %d, want 2", n)
	}
	if ob.Bids.Len() != 1 || ob.Bids.Front().Amount != 2 {
		t.Errorf("unexpected bids after compact: %+v", ob.Bids.Orders())
	}
	if ob.Asks.Len() != 0 {
		t.Errorf("asks not emptied: %+v", ob.Asks.Orders())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ob := NewOrderBook(mkt)
	ob.Insert(Bid, alice, 10, 5)

	cp := ob.Clone()
	cp.Bids.At(0).Amount = 1
	cp.Insert(Ask, bob, 11, 1)

	if ob.Bids.Front().Amount != 5 {
		t.Error("clone mutation leaked into original bids")
	}
	if ob.Asks.Len() != 0 || ob.NextOrderID != 1 {
		t.Error("clone insert leaked into original")
	}
}

func TestLevels(t *testing.T) {
	ob := NewOrderBook(mkt)
	ob.Insert(Bid, alice, 10, 5)
	ob.Insert(Bid, bob, 12, 1)
	ob.Insert(Bid, bob, 10, 2)
	ob.Insert(Ask, alice, 15, 4)
	ob.Insert(Ask, alice, 13, 3)

	bids := ob.BidLevels()
	if len(bids) != 2 || bids[0].Price != 12 || bids[1].Price != 10 || bids[1].Amount != 7 || bids[1].Orders != 2 {
		t.Errorf("bid levels = %+v", bids)
	}
	asks := ob.AskLevels()
	if len(asks) != 2 || asks[0].Price != 13 || asks[1].Price != 15 {
		t.Errorf("ask levels = %+v", asks)
	}

	if bb, _ := ob.BestBid(); bb != 12 {
		t.Errorf("best bid = %d", bb)
	}
	if ba, _ := ob.BestAsk(); ba != 13 {
		t.Errorf("best ask = %d", ba)
	}
	if ob.Crossed() {
		t.Error("book reported crossed")
	}
}

func TestJSONRoundTripKeepsOrder(t *testing.T) {
	ob := NewOrderBook(mkt)
	ob.Insert(Bid, alice, 10, 5)
	ob.Insert(Bid, bob, 10, 6)
	ob.Insert(Ask, alice, 11, 7)

	data, err := json.Marshal(ob)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out OrderBook
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.NextOrderID != 3 || out.Market != mkt {
		t.Errorf("header mismatch: %+v", out)
	}
	if got := out.Bids.Orders(); len(got) != 2 || got[0].Owner != alice || got[1].Owner != bob {
		t.Errorf("bids = %+v", got)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestUnmarshalRejectsOverCapacity(t *testing.T) {
	orders := make([]LimitOrder, MaxOrders+1)
	for i := range orders {
		orders[i] = LimitOrder{Owner: alice, Price: 1, Amount: 1, OrderID: uint64(i)}
	}
	data, _ := json.Marshal(orders)

	var side BookSide
	if err := json.Unmarshal(data, &side); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"bid", Bid, false},
		{"BUY", Bid, false},
		{"ask", Ask, false},
		{"Sell", Ask, false},
		{"hold", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
