// Package engine implements order admission, cancellation and price/time
// priority matching over a bounded order book. It is stateless: every call
// operates on the market and book passed in and moves value through the
// supplied Custody.
package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
)

// DefaultRewardDivisor gives the cranker one tenth of each fill's fee.
const DefaultRewardDivisor = 10

var (
	ErrMultiplyOverflow = errors.New("error in multiply")
	ErrInvalidValue     = errors.New("value invalid")
	ErrDustOrder        = errors.New("order value rounds to zero")
	ErrSettlement       = errors.New("settlement transfer failed")
)

// Config controls fee distribution.
type Config struct {
	// FeeCollector receives the protocol share of every fee.
	FeeCollector common.Address
	// CrankerReward enables paying part of the fee to whoever triggers matching.
	CrankerReward bool
	// RewardDivisor sets the reward to total_fee / RewardDivisor.
	RewardDivisor uint64
}

// DefaultConfig pays the cranker total_fee / 10.
func DefaultConfig(feeCollector common.Address) Config {
	return Config{
		FeeCollector:  feeCollector,
		CrankerReward: true,
		RewardDivisor: DefaultRewardDivisor,
	}
}

func (c Config) Validate() error {
	if c.FeeCollector == (common.Address{}) {
		return fmt.Errorf("fee collector must be set")
	}
	if c.CrankerReward && c.RewardDivisor == 0 {
		return fmt.Errorf("reward divisor must be positive when cranker reward is enabled")
	}
	return nil
}

// Engine runs place, cancel and match. The caller serializes calls per book.
type Engine struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates an engine. A nil logger disables logging.
func New(cfg Config, logger *zap.SugaredLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// PlaceRequest describes a new limit order.
type PlaceRequest struct {
	Owner  common.Address
	Side   orderbook.Side
	Price  uint64
	Amount uint64
}

// Locked returns the asset and amount a placement moves into custody.
func Locked(m *market.Market, side orderbook.Side, price, amount uint64) (string, uint64, error) {
	switch side {
	case orderbook.Bid:
		quote, err := QuoteAmount(amount, price, m.BaseScale())
		if err != nil {
			return "", 0, err
		}
		return m.QuoteAsset, quote, nil
	case orderbook.Ask:
		return m.BaseAsset, amount, nil
	default:
		return "", 0, fmt.Errorf("%w: %d", orderbook.ErrInvalidSide, side)
	}
}

// Place locks the order's funds in market custody and appends it to the
// book. Nothing is transferred when the book side is full.
func (e *Engine) Place(m *market.Market, ob *orderbook.OrderBook, custody Custody, req PlaceRequest) (orderbook.LimitOrder, error) {
	if ob.Market != m.ID {
		return orderbook.LimitOrder{}, orderbook.ErrMarketMismatch
	}
	if req.Price == 0 || req.Amount == 0 {
		return orderbook.LimitOrder{}, fmt.Errorf("%w: price and amount must be positive", ErrInvalidValue)
	}
	if req.Owner == (common.Address{}) {
		return orderbook.LimitOrder{}, fmt.Errorf("%w: owner must be set", ErrInvalidValue)
	}
	if err := ob.CanInsert(req.Side); err != nil {
		return orderbook.LimitOrder{}, err
	}

	value, err := QuoteAmount(req.Amount, req.Price, m.BaseScale())
	if err != nil {
		return orderbook.LimitOrder{}, err
	}
	if value == 0 {
		return orderbook.LimitOrder{}, fmt.Errorf("%w: %d @ %d", ErrDustOrder, req.Amount, req.Price)
	}
	asset, lock, err := Locked(m, req.Side, req.Price, req.Amount)
	if err != nil {
		return orderbook.LimitOrder{}, err
	}

	dst := m.BaseCustody
	if req.Side == orderbook.Bid {
		dst = m.QuoteCustody
	}
	if err := custody.Transfer(req.Owner, req.Owner, dst, asset, lock); err != nil {
		return orderbook.LimitOrder{}, fmt.Errorf("lock %d %s: %w", lock, asset, err)
	}

	var escrow uint64
	if req.Side == orderbook.Bid {
		escrow = lock
	}
	order, err := ob.InsertLocked(req.Side, req.Owner, req.Price, req.Amount, escrow)
	if err != nil {
		return orderbook.LimitOrder{}, err
	}

	e.logger.Debugw("order_placed",
		"market", m.Symbol(),
		"side", req.Side.String(),
		"order_id", order.OrderID,
		"owner", req.Owner.Hex(),
		"price", req.Price,
		"amount", req.Amount,
		"locked", lock,
	)
	return order, nil
}

// CancelResult reports what a cancellation did.
type CancelResult struct {
	Found  bool
	Order  orderbook.LimitOrder
	Asset  string
	Refund uint64
}

// Cancel removes the order matching both orderID and owner and refunds what
// remains of its lock. An order that does not exist (or belongs to someone
// else) is not an error: the result has Found == false and nothing moves.
func (e *Engine) Cancel(m *market.Market, ob *orderbook.OrderBook, custody Custody, owner common.Address, side orderbook.Side, orderID uint64) (CancelResult, error) {
	if ob.Market != m.ID {
		return CancelResult{}, orderbook.ErrMarketMismatch
	}
	if !side.Valid() {
		return CancelResult{}, fmt.Errorf("%w: %d", orderbook.ErrInvalidSide, side)
	}

	order, ok := ob.Find(side, orderID, owner)
	if !ok {
		e.logger.Debugw("cancel_miss", "market", m.Symbol(), "side", side.String(), "order_id", orderID, "owner", owner.Hex())
		return CancelResult{}, nil
	}

	asset, refund, src := m.BaseAsset, order.Amount, m.BaseCustody
	if side == orderbook.Bid {
		asset, refund, src = m.QuoteAsset, order.Locked, m.QuoteCustody
	}
	if refund > 0 {
		if err := custody.Transfer(m.Authority(), src, owner, asset, refund); err != nil {
			return CancelResult{}, fmt.Errorf("%w: refund %d %s: %w", ErrSettlement, refund, asset, err)
		}
	}
	ob.Remove(side, orderID, owner)

	e.logger.Debugw("order_cancelled",
		"market", m.Symbol(),
		"side", side.String(),
		"order_id", orderID,
		"owner", owner.Hex(),
		"refund", refund,
	)
	return CancelResult{Found: true, Order: order, Asset: asset, Refund: refund}, nil
}

// Fill is one executed trade between the front bid and the front ask.
type Fill struct {
	BidOrderID     uint64         `json:"bidOrderId"`
	AskOrderID     uint64         `json:"askOrderId"`
	Bidder         common.Address `json:"bidder"`
	Asker          common.Address `json:"asker"`
	FillAmount     uint64         `json:"fillAmount"`
	ExecutionPrice uint64         `json:"executionPrice"`
	QuoteAmount    uint64         `json:"quoteAmount"`
	TotalFee       uint64         `json:"totalFee"`
	CrankerReward  uint64         `json:"crankerReward"`
	ProtocolFee    uint64         `json:"protocolFee"`
	AskerCredit    uint64         `json:"askerCredit"`
	BidderRefund   uint64         `json:"bidderRefund"` // price improvement returned to the bidder
}

// MatchResult summarizes one matching pass.
type MatchResult struct {
	Fills         []Fill `json:"fills"`
	TotalFee      uint64 `json:"totalFee"`
	CrankerReward uint64 `json:"crankerReward"`
	ProtocolFee   uint64 `json:"protocolFee"`
}

// Match executes crossing orders until one side is empty or the best bid is
// below the best ask. The cranker is paid a share of each fill's fee when
// enabled; a zero cranker forfeits the reward to the fee collector.
//
// All amounts of an iteration are computed before its first transfer, and
// order amounts are decremented only after every transfer succeeded. On
// error the book keeps the effects of earlier iterations; callers that need
// the whole pass to be atomic run it on a clone with a staging Custody.
func (e *Engine) Match(m *market.Market, ob *orderbook.OrderBook, custody Custody, cranker common.Address) (*MatchResult, error) {
	if ob.Market != m.ID {
		return nil, orderbook.ErrMarketMismatch
	}

	// Leftovers from an earlier interrupted pass must not rest in the book.
	ob.Compact()
	ob.SortForMatching()

	res := &MatchResult{}
	authority := m.Authority()

	for ob.Bids.Len() > 0 && ob.Asks.Len() > 0 {
		bid, ask := ob.Bids.Front(), ob.Asks.Front()
		if bid.Price < ask.Price {
			break
		}

		fill, err := e.price(m, bid, ask, cranker)
		if err != nil {
			return nil, fmt.Errorf("match %d/%d: %w", bid.OrderID, ask.OrderID, err)
		}
		if err := e.settle(m, custody, authority, cranker, fill); err != nil {
			return nil, fmt.Errorf("match %d/%d: %w", bid.OrderID, ask.OrderID, err)
		}

		bid.Amount -= fill.FillAmount
		bid.Filled += fill.FillAmount
		bid.Locked -= fill.QuoteAmount + fill.BidderRefund
		ask.Amount -= fill.FillAmount
		ask.Filled += fill.FillAmount
		if bid.Amount == 0 {
			ob.PopFront(orderbook.Bid)
		}
		if ask.Amount == 0 {
			ob.PopFront(orderbook.Ask)
		}

		res.Fills = append(res.Fills, fill)
		res.TotalFee += fill.TotalFee
		res.CrankerReward += fill.CrankerReward
		res.ProtocolFee += fill.ProtocolFee
	}

	if len(res.Fills) > 0 {
		e.logger.Infow("orders_matched",
			"market", m.Symbol(),
			"fills", len(res.Fills),
			"total_fee", res.TotalFee,
			"cranker_reward", res.CrankerReward,
			"cranker", cranker.Hex(),
		)
	}
	return res, nil
}

// price computes the fill between the given bid and ask without touching
// any balance.
func (e *Engine) price(m *market.Market, bid, ask *orderbook.LimitOrder, cranker common.Address) (Fill, error) {
	fillAmount := min(bid.Amount, ask.Amount)
	scale := m.BaseScale()

	// The asker is paid on its cumulative filled amount, so however the ask
	// is split it receives floor(filled * price / scale) in total.
	paid, err := QuoteAmount(ask.Filled, ask.Price, scale)
	if err != nil {
		return Fill{}, err
	}
	owed, err := QuoteAmount(ask.Filled+fillAmount, ask.Price, scale)
	if err != nil {
		return Fill{}, err
	}
	quote := min(owed-paid, bid.Locked)

	// The bid keeps escrow for what remains at its own price and gets the
	// rest back.
	keep, err := QuoteAmount(bid.Amount-fillAmount, bid.Price, scale)
	if err != nil {
		return Fill{}, err
	}
	keep = min(keep, bid.Locked-quote)

	var divisor uint64
	if e.cfg.CrankerReward && cranker != (common.Address{}) {
		divisor = e.cfg.RewardDivisor
	}
	split, err := splitFee(quote, m.FeeBps, divisor)
	if err != nil {
		return Fill{}, err
	}

	return Fill{
		BidOrderID:     bid.OrderID,
		AskOrderID:     ask.OrderID,
		Bidder:         bid.Owner,
		Asker:          ask.Owner,
		FillAmount:     fillAmount,
		ExecutionPrice: ask.Price,
		QuoteAmount:    quote,
		TotalFee:       split.TotalFee,
		CrankerReward:  split.CrankerReward,
		ProtocolFee:    split.ProtocolFee,
		AskerCredit:    split.AskerCredit,
		BidderRefund:   bid.Locked - quote - keep,
	}, nil
}

// settle issues the transfers of one fill, all authorized by the market.
func (e *Engine) settle(m *market.Market, custody Custody, authority, cranker common.Address, f Fill) error {
	transfers := []struct {
		from, to common.Address
		asset    string
		amount   uint64
	}{
		{m.QuoteCustody, f.Asker, m.QuoteAsset, f.AskerCredit},
		{m.BaseCustody, f.Bidder, m.BaseAsset, f.FillAmount},
		{m.QuoteCustody, cranker, m.QuoteAsset, f.CrankerReward},
		{m.QuoteCustody, e.cfg.FeeCollector, m.QuoteAsset, f.ProtocolFee},
		{m.QuoteCustody, f.Bidder, m.QuoteAsset, f.BidderRefund},
	}
	for _, t := range transfers {
		if t.amount == 0 {
			continue
		}
		if err := custody.Transfer(authority, t.from, t.to, t.asset, t.amount); err != nil {
			return fmt.Errorf("%w: %d %s to %s: %w", ErrSettlement, t.amount, t.asset, t.to.Hex(), err)
		}
	}
	return nil
}
