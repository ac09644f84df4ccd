package engine

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
)

var (
	alice     = common.HexToAddress("0xA000000000000000000000000000000000000000")
	bob       = common.HexToAddress("0xB000000000000000000000000000000000000000")
	carol     = common.HexToAddress("0xC000000000000000000000000000000000000000")
	cranker   = common.HexToAddress("0xD000000000000000000000000000000000000000")
	collector = common.HexToAddress("0xFEE0000000000000000000000000000000000000")
)

type transfer struct {
	from, to common.Address
	asset    string
	amount   uint64
}

// memCustody is a minimal balance sheet enforcing the same debit authority
// rules as the account ledger.
type memCustody struct {
	bal       map[common.Address]map[string]uint64
	authority map[common.Address]common.Address
	log       []transfer
	failAfter int // fail every transfer once this many succeeded; -1 never
}

func newMemCustody(m *market.Market) *memCustody {
	c := &memCustody{
		bal:       make(map[common.Address]map[string]uint64),
		authority: make(map[common.Address]common.Address),
		failAfter: -1,
	}
	c.authority[m.BaseCustody] = m.Authority()
	c.authority[m.QuoteCustody] = m.Authority()
	return c
}

func (c *memCustody) fund(owner common.Address, asset string, amount uint64) {
	if c.bal[owner] == nil {
		c.bal[owner] = make(map[string]uint64)
	}
	c.bal[owner][asset] += amount
}

func (c *memCustody) balance(owner common.Address, asset string) uint64 {
	return c.bal[owner][asset]
}

func (c *memCustody) total(asset string) uint64 {
	var sum uint64
	for _, assets := range c.bal {
		sum += assets[asset]
	}
	return sum
}

func (c *memCustody) Transfer(authority, from, to common.Address, asset string, amount uint64) error {
	if c.failAfter >= 0 && len(c.log) >= c.failAfter {
		return errors.New("custody offline")
	}
	want, isCustody := c.authority[from]
	if !isCustody {
		want = from
	}
	if authority != want {
		return fmt.Errorf("unauthorized debit of %s", from.Hex())
	}
	if c.balance(from, asset) < amount {
		return fmt.Errorf("insufficient %s: have %d, need %d", asset, c.balance(from, asset), amount)
	}
	c.bal[from][asset] -= amount
	c.fund(to, asset, amount)
	c.log = append(c.log, transfer{from, to, asset, amount})
	return nil
}

func newTestMarket(t *testing.T, baseDecimals uint8, feeBps uint16) (*market.Market, *orderbook.OrderBook) {
	t.Helper()
	m, err := market.NewMarket(market.Params{
		BaseAsset:    "SOL",
		QuoteAsset:   "USDC",
		BaseDecimals: baseDecimals,
		FeeBps:       feeBps,
		Creator:      alice,
	})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	return m, orderbook.NewOrderBook(m.ID)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig(collector), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func place(t *testing.T, e *Engine, m *market.Market, ob *orderbook.OrderBook, c Custody, owner common.Address, side orderbook.Side, price, amount uint64) orderbook.LimitOrder {
	t.Helper()
	o, err := e.Place(m, ob, c, PlaceRequest{Owner: owner, Side: side, Price: price, Amount: amount})
	if err != nil {
		t.Fatalf("place %s %d@%d: %v", side, amount, price, err)
	}
	return o
}

func TestConcreteScenario(t *testing.T) {
	m, ob := newTestMarket(t, 0, 100) // 1%
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 500)
	c.fund(bob, "SOL", 5)

	place(t, e, m, ob, c, alice, orderbook.Bid, 100, 5)
	place(t, e, m, ob, c, bob, orderbook.Ask, 90, 5)

	if c.balance(m.QuoteCustody, "USDC") != 500 || c.balance(m.BaseCustody, "SOL") != 5 {
		t.Fatalf("locks not in custody: quote=%d base=%d", c.balance(m.QuoteCustody, "USDC"), c.balance(m.BaseCustody, "SOL"))
	}

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(res.Fills))
	}
	f := res.Fills[0]
	if f.ExecutionPrice != 90 || f.FillAmount != 5 || f.QuoteAmount != 450 {
		t.Errorf("fill = %+v", f)
	}
	if f.TotalFee != 4 || f.AskerCredit != 446 || f.BidderRefund != 50 {
		t.Errorf("fee = %d credit = %d refund = %d", f.TotalFee, f.AskerCredit, f.BidderRefund)
	}
	if ob.Bids.Len() != 0 || ob.Asks.Len() != 0 {
		t.Errorf("orders left: bids=%d asks=%d", ob.Bids.Len(), ob.Asks.Len())
	}

	if got := c.balance(alice, "SOL"); got != 5 {
		t.Errorf("alice SOL = %d, want 5", got)
	}
	if got := c.balance(alice, "USDC"); got != 50 {
		t.Errorf("alice USDC = %d, want 50 price improvement", got)
	}
	if got := c.balance(bob, "USDC"); got != 450-f.TotalFee {
		t.Errorf("bob USDC = %d, want %d", got, 450-f.TotalFee)
	}
	if got := c.balance(m.QuoteCustody, "USDC"); got != 0 {
		t.Errorf("quote custody left with %d", got)
	}
}

func TestPriceTimePriority(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	for _, owner := range []common.Address{alice, bob, carol} {
		c.fund(owner, "USDC", 1000)
	}
	c.fund(cranker, "SOL", 10)

	first := place(t, e, m, ob, c, alice, orderbook.Bid, 10, 10)
	second := place(t, e, m, ob, c, bob, orderbook.Bid, 10, 10)
	low := place(t, e, m, ob, c, carol, orderbook.Bid, 9, 10)
	place(t, e, m, ob, c, cranker, orderbook.Ask, 9, 10)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].BidOrderID != first.OrderID {
		t.Fatalf("fills = %+v, want only order %d", res.Fills, first.OrderID)
	}

	bids := ob.Bids.Orders()
	if len(bids) != 2 || bids[0].OrderID != second.OrderID || bids[1].OrderID != low.OrderID {
		t.Errorf("remaining bids = %+v", bids)
	}
}

func TestPartialFills(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 100)

	place(t, e, m, ob, c, alice, orderbook.Bid, 10, 100)
	place(t, e, m, ob, c, bob, orderbook.Ask, 10, 40)
	place(t, e, m, ob, c, bob, orderbook.Ask, 10, 60)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Fills) != 2 || res.Fills[0].FillAmount != 40 || res.Fills[1].FillAmount != 60 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	if ob.Bids.Len() != 0 || ob.Asks.Len() != 0 {
		t.Errorf("book not empty: bids=%v asks=%v", ob.Bids.Orders(), ob.Asks.Orders())
	}
}

func TestPartialFillStaysAtFront(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 100)

	place(t, e, m, ob, c, alice, orderbook.Bid, 10, 30)
	ask := place(t, e, m, ob, c, bob, orderbook.Ask, 10, 100)

	if _, err := e.Match(m, ob, c, cranker); err != nil {
		t.Fatalf("match: %v", err)
	}
	front := ob.Asks.Front()
	if front == nil || front.OrderID != ask.OrderID || front.Amount != 70 {
		t.Errorf("front ask = %+v, want order %d with 70 left", front, ask.OrderID)
	}
}

func TestMatchStopsWhenNotCrossed(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 100)

	place(t, e, m, ob, c, alice, orderbook.Bid, 9, 10)
	place(t, e, m, ob, c, bob, orderbook.Ask, 10, 10)
	before := len(c.log)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Fills) != 0 || len(c.log) != before {
		t.Errorf("uncrossed book traded: %+v", res.Fills)
	}
	if ob.Bids.Len() != 1 || ob.Asks.Len() != 1 {
		t.Error("resting orders removed")
	}
}

func TestFeeDistribution(t *testing.T) {
	m, ob := newTestMarket(t, 0, 1000) // 10%
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 10000)
	c.fund(bob, "SOL", 100)

	place(t, e, m, ob, c, alice, orderbook.Bid, 50, 100)
	place(t, e, m, ob, c, bob, orderbook.Ask, 50, 100)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	// quote 5000, fee 500, reward 50, protocol 450
	if res.TotalFee != 500 || res.CrankerReward != 50 || res.ProtocolFee != 450 {
		t.Errorf("result = %+v", res)
	}
	if c.balance(cranker, "USDC") != 50 || c.balance(collector, "USDC") != 450 || c.balance(bob, "USDC") != 4500 {
		t.Errorf("cranker=%d collector=%d bob=%d", c.balance(cranker, "USDC"), c.balance(collector, "USDC"), c.balance(bob, "USDC"))
	}
}

func TestNoCrankerForfeitsReward(t *testing.T) {
	m, ob := newTestMarket(t, 0, 1000)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 10000)
	c.fund(bob, "SOL", 100)

	place(t, e, m, ob, c, alice, orderbook.Bid, 50, 100)
	place(t, e, m, ob, c, bob, orderbook.Ask, 50, 100)

	res, err := e.Match(m, ob, c, common.Address{})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.CrankerReward != 0 || res.ProtocolFee != 500 {
		t.Errorf("result = %+v", res)
	}
	if c.balance(collector, "USDC") != 500 {
		t.Errorf("collector = %d", c.balance(collector, "USDC"))
	}
}

func TestRewardDisabled(t *testing.T) {
	m, ob := newTestMarket(t, 0, 1000)
	e, err := New(Config{FeeCollector: collector}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	c := newMemCustody(m)
	c.fund(alice, "USDC", 10000)
	c.fund(bob, "SOL", 100)
	place(t, e, m, ob, c, alice, orderbook.Bid, 50, 100)
	place(t, e, m, ob, c, bob, orderbook.Ask, 50, 100)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.CrankerReward != 0 || c.balance(cranker, "USDC") != 0 {
		t.Errorf("reward paid while disabled: %+v", res)
	}
}

func TestPlaceValidation(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", math.MaxUint64)

	tests := []struct {
		name string
		req  PlaceRequest
		want error
	}{
		{"zero price", PlaceRequest{Owner: alice, Side: orderbook.Bid, Price: 0, Amount: 1}, ErrInvalidValue},
		{"zero amount", PlaceRequest{Owner: alice, Side: orderbook.Bid, Price: 1, Amount: 0}, ErrInvalidValue},
		{"no owner", PlaceRequest{Side: orderbook.Bid, Price: 1, Amount: 1}, ErrInvalidValue},
		{"bad side", PlaceRequest{Owner: alice, Side: 7, Price: 1, Amount: 1}, orderbook.ErrInvalidSide},
		{"overflow", PlaceRequest{Owner: alice, Side: orderbook.Bid, Price: math.MaxUint64, Amount: math.MaxUint64}, ErrMultiplyOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Place(m, ob, c, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if ob.Bids.Len() != 0 || len(c.log) != 0 {
				t.Error("rejected order changed state")
			}
		})
	}
}

func TestPlaceDustBidRejected(t *testing.T) {
	m, ob := newTestMarket(t, 9, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 100)

	// 1 lamport at 1 USDC unit per SOL is worth 1e-9 units.
	_, err := e.Place(m, ob, c, PlaceRequest{Owner: alice, Side: orderbook.Bid, Price: 1, Amount: 1})
	if !errors.Is(err, ErrDustOrder) {
		t.Fatalf("err = %v, want ErrDustOrder", err)
	}
}

func TestPlaceDustAskRejected(t *testing.T) {
	m, ob := newTestMarket(t, 2, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(bob, "SOL", 100)

	// 0.5 SOL at 1 USDC unit is worth half a unit.
	_, err := e.Place(m, ob, c, PlaceRequest{Owner: bob, Side: orderbook.Ask, Price: 1, Amount: 50})
	if !errors.Is(err, ErrDustOrder) {
		t.Fatalf("err = %v, want ErrDustOrder", err)
	}
	if ob.Asks.Len() != 0 || len(c.log) != 0 {
		t.Error("dust ask changed state")
	}
}

func TestSlicedBidsStillPayTheAsker(t *testing.T) {
	m, ob := newTestMarket(t, 2, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 100)
	c.fund(bob, "SOL", 150)

	// 1.5 SOL at 1 is worth 1 unit. Each 0.5 SOL slice alone rounds to 0.
	ask := place(t, e, m, ob, c, bob, orderbook.Ask, 1, 150)
	for i := 0; i < 3; i++ {
		place(t, e, m, ob, c, alice, orderbook.Bid, 3, 50)
	}

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(res.Fills))
	}

	var paid uint64
	for _, f := range res.Fills {
		if f.AskOrderID != ask.OrderID {
			t.Fatalf("fill against ask %d", f.AskOrderID)
		}
		paid += f.QuoteAmount
	}
	want, _ := QuoteAmount(150, 1, m.BaseScale())
	if paid != want || c.balance(bob, "USDC") != want {
		t.Errorf("asker paid %d, holds %d USDC, want %d", paid, c.balance(bob, "USDC"), want)
	}
	if c.balance(alice, "SOL") != 150 || c.balance(alice, "USDC") != 100-want {
		t.Errorf("alice SOL = %d USDC = %d", c.balance(alice, "SOL"), c.balance(alice, "USDC"))
	}
	if got := c.balance(m.QuoteCustody, "USDC"); got != 0 {
		t.Errorf("quote custody left with %d", got)
	}
}

func TestPartialFillKeepsBidEscrow(t *testing.T) {
	m, ob := newTestMarket(t, 2, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 100)
	c.fund(bob, "SOL", 100)

	// 1.5 SOL at 3 locks 4 units. 1 SOL fills at 2 and 0.5 SOL stays open.
	bid := place(t, e, m, ob, c, alice, orderbook.Bid, 3, 150)
	place(t, e, m, ob, c, bob, orderbook.Ask, 2, 100)

	res, err := e.Match(m, ob, c, cranker)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	f := res.Fills[0]
	if f.QuoteAmount != 2 || f.BidderRefund != 1 {
		t.Fatalf("quote = %d refund = %d, want 2 and 1", f.QuoteAmount, f.BidderRefund)
	}
	rest, ok := ob.Find(orderbook.Bid, bid.OrderID, alice)
	if !ok || rest.Amount != 50 || rest.Filled != 100 || rest.Locked != 1 {
		t.Fatalf("resting bid = %+v", rest)
	}

	cancel, err := e.Cancel(m, ob, c, alice, orderbook.Bid, bid.OrderID)
	if err != nil || cancel.Refund != 1 {
		t.Fatalf("cancel = %+v, %v", cancel, err)
	}
	if got := c.balance(m.QuoteCustody, "USDC"); got != 0 {
		t.Errorf("quote custody left with %d", got)
	}
}

func TestPlaceScalesBidLock(t *testing.T) {
	m, ob := newTestMarket(t, 9, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1_000_000_000)

	// 2.5 SOL at 20 USDC (6 decimals) locks 50 USDC.
	place(t, e, m, ob, c, alice, orderbook.Bid, 20_000_000, 2_500_000_000)
	if got := c.balance(m.QuoteCustody, "USDC"); got != 50_000_000 {
		t.Errorf("locked = %d, want 50000000", got)
	}
}

func TestPlaceFullBookTransfersNothing(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(bob, "SOL", 1000)

	for i := 0; i < orderbook.MaxOrders; i++ {
		place(t, e, m, ob, c, bob, orderbook.Ask, 10, 1)
	}
	before := c.balance(bob, "SOL")
	next := ob.NextOrderID

	_, err := e.Place(m, ob, c, PlaceRequest{Owner: bob, Side: orderbook.Ask, Price: 10, Amount: 1})
	if !errors.Is(err, orderbook.ErrOrderBookFull) {
		t.Fatalf("err = %v, want ErrOrderBookFull", err)
	}
	if c.balance(bob, "SOL") != before || ob.NextOrderID != next {
		t.Error("full book still moved funds or consumed an id")
	}
}

func TestPlaceInsufficientFunds(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 10)

	if _, err := e.Place(m, ob, c, PlaceRequest{Owner: alice, Side: orderbook.Bid, Price: 10, Amount: 5}); err == nil {
		t.Fatal("expected lock failure")
	}
	if ob.Bids.Len() != 0 || ob.NextOrderID != 0 {
		t.Error("order inserted without lock")
	}
}

func TestCancel(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 10)

	a := place(t, e, m, ob, c, alice, orderbook.Bid, 10, 5)
	b := place(t, e, m, ob, c, alice, orderbook.Bid, 10, 5)
	ask := place(t, e, m, ob, c, bob, orderbook.Ask, 20, 10)

	t.Run("wrong owner", func(t *testing.T) {
		res, err := e.Cancel(m, ob, c, bob, orderbook.Bid, a.OrderID)
		if err != nil || res.Found {
			t.Fatalf("res = %+v, err = %v", res, err)
		}
		if ob.Bids.Len() != 2 {
			t.Error("foreign order removed")
		}
	})

	t.Run("bid refund", func(t *testing.T) {
		res, err := e.Cancel(m, ob, c, alice, orderbook.Bid, a.OrderID)
		if err != nil || !res.Found || res.Refund != 50 || res.Asset != "USDC" {
			t.Fatalf("res = %+v, err = %v", res, err)
		}
		if c.balance(alice, "USDC") != 950 {
			t.Errorf("alice USDC = %d", c.balance(alice, "USDC"))
		}
		bids := ob.Bids.Orders()
		if len(bids) != 1 || bids[0].OrderID != b.OrderID {
			t.Errorf("sibling disturbed: %+v", bids)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		before := len(c.log)
		res, err := e.Cancel(m, ob, c, alice, orderbook.Bid, a.OrderID)
		if err != nil || res.Found || len(c.log) != before {
			t.Fatalf("second cancel res = %+v, err = %v", res, err)
		}
	})

	t.Run("ask refund", func(t *testing.T) {
		res, err := e.Cancel(m, ob, c, bob, orderbook.Ask, ask.OrderID)
		if err != nil || res.Refund != 10 || res.Asset != "SOL" {
			t.Fatalf("res = %+v, err = %v", res, err)
		}
		if c.balance(bob, "SOL") != 10 {
			t.Errorf("bob SOL = %d", c.balance(bob, "SOL"))
		}
	})
}

func TestCancelAfterPartialFill(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 4)

	bid := place(t, e, m, ob, c, alice, orderbook.Bid, 10, 10)
	place(t, e, m, ob, c, bob, orderbook.Ask, 10, 4)
	if _, err := e.Match(m, ob, c, cranker); err != nil {
		t.Fatalf("match: %v", err)
	}

	res, err := e.Cancel(m, ob, c, alice, orderbook.Bid, bid.OrderID)
	if err != nil || res.Refund != 60 {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if got := c.balance(m.QuoteCustody, "USDC"); got != 0 {
		t.Errorf("quote custody left with %d", got)
	}
}

func TestMatchOverflowAborts(t *testing.T) {
	m, ob := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	c := newMemCustody(m)

	// Bypass placement checks to reach the settlement arithmetic.
	ob.Insert(orderbook.Bid, alice, math.MaxUint64, math.MaxUint64)
	ob.Insert(orderbook.Ask, bob, math.MaxUint64, math.MaxUint64)

	_, err := e.Match(m, ob, c, cranker)
	if !errors.Is(err, ErrMultiplyOverflow) {
		t.Fatalf("err = %v, want ErrMultiplyOverflow", err)
	}
	if len(c.log) != 0 || ob.Bids.Front().Amount != math.MaxUint64 {
		t.Error("overflowing fill mutated state")
	}
}

func TestSettlementFailureKeepsAmounts(t *testing.T) {
	m, ob := newTestMarket(t, 0, 100)
	e := newTestEngine(t)
	c := newMemCustody(m)
	c.fund(alice, "USDC", 1000)
	c.fund(bob, "SOL", 10)

	place(t, e, m, ob, c, alice, orderbook.Bid, 10, 10)
	place(t, e, m, ob, c, bob, orderbook.Ask, 10, 10)
	c.failAfter = len(c.log) + 1 // first settlement transfer succeeds, second fails

	_, err := e.Match(m, ob, c, cranker)
	if !errors.Is(err, ErrSettlement) {
		t.Fatalf("err = %v, want ErrSettlement", err)
	}
	if ob.Bids.Front().Amount != 10 || ob.Asks.Front().Amount != 10 {
		t.Error("amounts decremented despite failed settlement")
	}
}

func TestMismatchedBook(t *testing.T) {
	m, _ := newTestMarket(t, 0, 0)
	e := newTestEngine(t)
	other := orderbook.NewOrderBook(common.Hash{1})
	if _, err := e.Match(m, other, newMemCustody(m), cranker); !errors.Is(err, orderbook.ErrMarketMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("missing collector accepted")
	}
	if _, err := New(Config{FeeCollector: collector, CrankerReward: true}, nil); err == nil {
		t.Error("zero divisor accepted")
	}
}
