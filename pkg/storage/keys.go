package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for Pebble storage:
//
//   mkt:<marketID>                          → Market
//   book:<marketID>                         → OrderBook
//   acc:<address>                           → Account (balances + nonce)
//   trade:<marketID>:<timestamp>:<tradeID>  → Trade

// Key prefixes
const (
	prefixMarket  = "mkt:"
	prefixBook    = "book:"
	prefixAccount = "acc:"
	prefixTrade   = "trade:"
)

// marketKey returns the key for a market
// Format: "mkt:{marketID}"
func marketKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMarket, id.Hex()))
}

// bookKey returns the key for the order book of a market
// Format: "book:{marketID}"
func bookKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixBook, id.Hex()))
}

// accountKey returns the key for an account
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// tradeKey returns the key for a trade
// Format: "trade:{marketID}:{timestamp}:{tradeID}"
// Timestamp is zero-padded (20 digits) for lexicographic sorting
func tradeKey(market common.Hash, timestamp int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, market.Hex(), timestamp, tradeID))
}

// tradePrefix returns the prefix for all trades of a market
// Format: "trade:{marketID}:"
func tradePrefix(market common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, market.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
