package account

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Ledger holds all balances in memory and applies them in staged
// transactions. Persistence happens through the callback given to
// Tx.Commit, so the ledger itself has no storage dependency.
//
// Custody accounts can only be debited under the authority they were
// registered with; every other account only under its own identity.
type Ledger struct {
	mu        sync.RWMutex
	accounts  map[common.Address]*Account
	authority map[common.Address]common.Address // custody account -> authority
	logger    *zap.SugaredLogger
}

// NewLedger creates an empty ledger. A nil logger disables logging.
func NewLedger(logger *zap.SugaredLogger) *Ledger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ledger{
		accounts:  make(map[common.Address]*Account),
		authority: make(map[common.Address]common.Address),
		logger:    logger,
	}
}

// Restore loads persisted accounts, replacing any in-memory state for them
func (l *Ledger) Restore(accounts []*Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, acc := range accounts {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("restore account: %w", err)
		}
		cp := acc.Clone()
		l.accounts[cp.Address] = cp
	}
	return nil
}

// RegisterCustody marks account as a custody account debitable only by
// authority. Registering the same pair twice is a no-op.
func (l *Ledger) RegisterCustody(account, authority common.Address) error {
	if account == (common.Address{}) || authority == (common.Address{}) {
		return fmt.Errorf("register custody: %w", ErrZeroAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.authority[account]; ok {
		if existing != authority {
			return fmt.Errorf("%w: %s", ErrCustodyRegistered, account.Hex())
		}
		return nil
	}
	l.authority[account] = authority
	return nil
}

// IsCustody reports whether account is a registered custody account
func (l *Ledger) IsCustody(account common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.authority[account]
	return ok
}

// Balance returns the committed balance of addr in asset
func (l *Ledger) Balance(addr common.Address, asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(addr, asset)
}

func (l *Ledger) balanceLocked(addr common.Address, asset string) uint64 {
	acc, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return acc.Balance(asset)
}

// Balances returns a copy of every committed balance of addr
func (l *Ledger) Balances(addr common.Address) map[string]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]uint64)
	if acc, ok := l.accounts[addr]; ok {
		for asset, bal := range acc.Balances {
			if bal > 0 {
				out[asset] = bal
			}
		}
	}
	return out
}

// Nonce returns the highest nonce addr has used
func (l *Ledger) Nonce(addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

// Account returns a copy of the account, or nil if it was never touched
func (l *Ledger) Account(addr common.Address) *Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Clone()
	}
	return nil
}

// ListAccounts returns copies of all accounts sorted by address
func (l *Ledger) ListAccounts() []*Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Count returns the number of known accounts
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

// Supply returns the sum of all committed balances of asset, saturating at
// math.MaxUint64
func (l *Ledger) Supply(asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := new(uint256.Int)
	for _, acc := range l.accounts {
		total.Add(total, uint256.NewInt(acc.Balance(asset)))
	}
	if !total.IsUint64() {
		return math.MaxUint64
	}
	return total.Uint64()
}

// Begin opens a staged transaction against the committed state
func (l *Ledger) Begin() *Tx {
	return &Tx{
		l:       l,
		credits: make(map[balanceKey]uint64),
		debits:  make(map[balanceKey]uint64),
		nonces:  make(map[common.Address]nonceUse),
	}
}

func (l *Ledger) authorityOf(addr common.Address) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if auth, ok := l.authority[addr]; ok {
		return auth
	}
	return addr
}
