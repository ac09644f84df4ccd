package orderbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxOrders is the hard capacity of each side of the book.
const MaxOrders = 50

var (
	ErrOrderBookFull    = errors.New("order book is full")
	ErrOrderIDOverflow  = errors.New("order id space exhausted")
	ErrInvalidSide      = errors.New("invalid order side")
	ErrMarketMismatch   = errors.New("order book belongs to a different market")
	ErrCapacityExceeded = errors.New("book side exceeds capacity")
)

// Side is the side of a resting order. Values match the uint8 encoding used
// in signed transactions (1 = bid, 2 = ask).
type Side uint8

const (
	Bid Side = 1
	Ask Side = 2
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Bid or Ask.
func (s Side) Valid() bool {
	return s == Bid || s == Ask
}

// ParseSide accepts "bid"/"buy" and "ask"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// LimitOrder is a single resting order.
// Price is quote units per whole base unit, Amount is base minor units still
// open and Filled is base minor units already executed. Locked is the quote
// still held in custody for a bid; asks hold exactly Amount base units.
// After placement only fills change Amount, Filled and Locked.
type LimitOrder struct {
	Owner   common.Address `json:"owner"`
	Price   uint64         `json:"price"`
	Amount  uint64         `json:"amount"`
	Filled  uint64         `json:"filled"`
	Locked  uint64         `json:"locked,omitempty"`
	OrderID uint64         `json:"orderId"`
}

// PriceLevel aggregates resting amount at one price.
type PriceLevel struct {
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	Orders int    `json:"orders"`
}
