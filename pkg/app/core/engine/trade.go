package engine

import "github.com/ethereum/go-ethereum/common"

// Trade is a committed fill as recorded in trade history.
type Trade struct {
	ID        string         `json:"id"`
	Market    common.Hash    `json:"market"`
	Symbol    string         `json:"symbol"`
	Timestamp int64          `json:"timestamp"` // unix ms
	Cranker   common.Address `json:"cranker"`
	Fill
}
