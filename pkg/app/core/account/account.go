package account

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized transfer")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrZeroAddress         = errors.New("zero address")
	ErrBadNonce            = errors.New("invalid nonce")
	ErrCustodyRegistered   = errors.New("custody account registered to another authority")
	ErrTxClosed            = errors.New("ledger transaction already closed")
)

// Account is the persisted state of one identity: a balance per asset and
// the highest request nonce used so far.
type Account struct {
	Address  common.Address    `json:"address"`  // EVM 20-byte address (0x...)
	Nonce    uint64            `json:"nonce"`    // highest nonce used by a signed request, 0 if none
	Balances map[string]uint64 `json:"balances"` // asset -> minor units
}

// NewAccount creates an account with no balances
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[string]uint64),
	}
}

// Balance returns the balance of asset, zero if never credited
func (a *Account) Balance(asset string) uint64 {
	return a.Balances[asset]
}

// Assets returns the assets with a non-zero balance, sorted by name
func (a *Account) Assets() []string {
	assets := make([]string, 0, len(a.Balances))
	for asset, bal := range a.Balances {
		if bal > 0 {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets
}

// Clone returns a deep copy
func (a *Account) Clone() *Account {
	cp := &Account{
		Address:  a.Address,
		Nonce:    a.Nonce,
		Balances: make(map[string]uint64, len(a.Balances)),
	}
	for asset, bal := range a.Balances {
		cp.Balances[asset] = bal
	}
	return cp
}

// Validate checks an account loaded from storage
func (a *Account) Validate() error {
	if a.Address == (common.Address{}) {
		return fmt.Errorf("account has %w", ErrZeroAddress)
	}
	for asset := range a.Balances {
		if asset == "" {
			return fmt.Errorf("account %s has balance for empty asset", a.Address.Hex())
		}
	}
	return nil
}
