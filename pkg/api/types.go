package api

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/dex"
)

// API response types for REST endpoints and WebSocket messages.
// Raw integer amounts are always present; the *Display fields render them
// in whole units using the asset's decimals.

// formatUnits renders minor units as a decimal string, e.g. 1500000 with 6
// decimals as "1.5"
func formatUnits(v uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -int32(decimals)).String()
}

// ==============================
// REST Response Types
// ==============================

// MarketInfo represents a market's static configuration
type MarketInfo struct {
	ID            string `json:"id"`         // 0x-prefixed market id
	Symbol        string `json:"symbol"`     // e.g., "SOL-USDC"
	BaseAsset     string `json:"baseAsset"`  // e.g., "SOL"
	QuoteAsset    string `json:"quoteAsset"` // e.g., "USDC"
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	FeeBps        uint16 `json:"feeBps"`
	BaseCustody   string `json:"baseCustody"`
	QuoteCustody  string `json:"quoteCustody"`
	Creator       string `json:"creator"`
	CreatedAt     int64  `json:"createdAt"` // Unix milliseconds
}

func newMarketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		ID:            m.ID.Hex(),
		Symbol:        m.Symbol(),
		BaseAsset:     m.BaseAsset,
		QuoteAsset:    m.QuoteAsset,
		BaseDecimals:  m.BaseDecimals,
		QuoteDecimals: m.QuoteDecimals,
		FeeBps:        m.FeeBps,
		BaseCustody:   m.BaseCustody.Hex(),
		QuoteCustody:  m.QuoteCustody.Hex(),
		Creator:       m.Creator.Hex(),
		CreatedAt:     m.CreatedAt,
	}
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Market    string       `json:"market"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	BidCount  int          `json:"bidCount"`
	AskCount  int          `json:"askCount"`
	Capacity  int          `json:"capacity"` // Per side
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel aggregates the resting orders at one price
type PriceLevel struct {
	Price        uint64 `json:"price"` // Quote units per whole base unit
	Size         uint64 `json:"size"`  // Base minor units
	Orders       int    `json:"orders"`
	PriceDisplay string `json:"priceDisplay"`
	SizeDisplay  string `json:"sizeDisplay"`
}

func newPriceLevels(m *market.Market, levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{
			Price:        l.Price,
			Size:         l.Amount,
			Orders:       l.Orders,
			PriceDisplay: formatUnits(l.Price, m.QuoteDecimals),
			SizeDisplay:  formatUnits(l.Amount, m.BaseDecimals),
		}
	}
	return out
}

func newOrderbookSnapshot(m *market.Market, ob *orderbook.OrderBook, ts int64) OrderbookSnapshot {
	return OrderbookSnapshot{
		Market:    m.ID.Hex(),
		Symbol:    m.Symbol(),
		Bids:      newPriceLevels(m, ob.BidLevels()),
		Asks:      newPriceLevels(m, ob.AskLevels()),
		BidCount:  ob.Bids.Len(),
		AskCount:  ob.Asks.Len(),
		Capacity:  orderbook.MaxOrders,
		Timestamp: ts,
	}
}

// TradeInfo represents a committed fill
type TradeInfo struct {
	ID            string `json:"id"`
	Market        string `json:"market"`
	Symbol        string `json:"symbol"`
	Price         uint64 `json:"price"`
	Size          uint64 `json:"size"`
	QuoteAmount   uint64 `json:"quoteAmount"`
	Fee           uint64 `json:"fee"`
	CrankerReward uint64 `json:"crankerReward"`
	BidOrderID    uint64 `json:"bidOrderId"`
	AskOrderID    uint64 `json:"askOrderId"`
	Bidder        string `json:"bidder"`
	Asker         string `json:"asker"`
	Cranker       string `json:"cranker"`
	PriceDisplay  string `json:"priceDisplay"`
	SizeDisplay   string `json:"sizeDisplay"`
	Timestamp     int64  `json:"timestamp"` // Unix milliseconds
}

func newTradeInfo(m *market.Market, tr *engine.Trade) TradeInfo {
	return TradeInfo{
		ID:            tr.ID,
		Market:        tr.Market.Hex(),
		Symbol:        tr.Symbol,
		Price:         tr.ExecutionPrice,
		Size:          tr.FillAmount,
		QuoteAmount:   tr.QuoteAmount,
		Fee:           tr.TotalFee,
		CrankerReward: tr.CrankerReward,
		BidOrderID:    tr.BidOrderID,
		AskOrderID:    tr.AskOrderID,
		Bidder:        tr.Bidder.Hex(),
		Asker:         tr.Asker.Hex(),
		Cranker:       tr.Cranker.Hex(),
		PriceDisplay:  formatUnits(tr.ExecutionPrice, m.QuoteDecimals),
		SizeDisplay:   formatUnits(tr.FillAmount, m.BaseDecimals),
		Timestamp:     tr.Timestamp,
	}
}

// BalanceInfo is one asset balance
type BalanceInfo struct {
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
	Display string `json:"display,omitempty"` // Empty when no market lists the asset
}

// AccountInfo represents an identity's balances and request nonce
type AccountInfo struct {
	Address  string        `json:"address"`
	Nonce    uint64        `json:"nonce"` // Next signed request must use a larger nonce
	Balances []BalanceInfo `json:"balances"`
}

// OrderInfo represents a resting order
type OrderInfo struct {
	OrderID       uint64 `json:"orderId"`
	Market        string `json:"market"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"` // "bid" or "ask"
	Price         uint64 `json:"price"`
	Remaining     uint64 `json:"remaining"`
	Filled        uint64 `json:"filled"`
	PriceDisplay  string `json:"priceDisplay"`
	RemainDisplay string `json:"remainingDisplay"`
}

func newOrderInfo(m *market.Market, o dex.OpenOrder) OrderInfo {
	return OrderInfo{
		OrderID:       o.OrderID,
		Market:        o.Market.Hex(),
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		Price:         o.Price,
		Remaining:     o.Amount,
		Filled:        o.Filled,
		PriceDisplay:  formatUnits(o.Price, m.QuoteDecimals),
		RemainDisplay: formatUnits(o.Amount, m.BaseDecimals),
	}
}

// DomainInfo tells clients how to build EIP-712 signatures
type DomainInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orderbook:SOL-USDC", "trades:0x5f1c..."]
}

// OrderbookUpdate is broadcast after every committed book change
type OrderbookUpdate struct {
	Type string `json:"type"` // "orderbook"
	OrderbookSnapshot
}

// TradeUpdate is broadcast when a trade commits
type TradeUpdate struct {
	Type string `json:"type"` // "trade"
	TradeInfo
}

// ==============================
// REST Request Types
// ==============================

// NOTE: Order, cancel, match and market creation requests are signed JSON
// transactions (EIP-712). See pkg/app/core/transaction/types.go.

// FaucetRequest is the payload for POST /api/v1/faucet
type FaucetRequest struct {
	Address string `json:"address"`
	Market  string `json:"market"` // Market id or symbol
}

// FaucetResponse lists the minted amounts
type FaucetResponse struct {
	Address string        `json:"address"`
	Minted  []BalanceInfo `json:"minted"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
