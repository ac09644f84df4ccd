package engine

import "github.com/ethereum/go-ethereum/common"

// Custody moves value between accounts. Authority is the identity on whose
// behalf the transfer is made: the trader for deposits into custody, the
// market authority for anything paid out of custody.
//
// Each Transfer is all-or-nothing. Implementations that stage transfers
// (see account.Tx) let the caller discard a whole operation when a later
// step fails.
type Custody interface {
	Transfer(authority, from, to common.Address, asset string, amount uint64) error
}

// CustodyFunc adapts a function to the Custody interface.
type CustodyFunc func(authority, from, to common.Address, asset string, amount uint64) error

func (f CustodyFunc) Transfer(authority, from, to common.Address, asset string, amount uint64) error {
	return f(authority, from, to, asset, amount)
}
