package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type balanceKey struct {
	addr  common.Address
	asset string
}

type nonceUse struct {
	base uint64 // committed nonce when first used in this tx
	last uint64
}

// Tx stages transfers, mints and nonce uses without touching committed
// balances. Each call either stages completely or not at all, so a failed
// Transfer leaves the Tx as it was. Tx is not safe for concurrent use.
type Tx struct {
	l       *Ledger
	credits map[balanceKey]uint64
	debits  map[balanceKey]uint64
	nonces  map[common.Address]nonceUse
	order   []common.Address // touched accounts in first-touch order
	closed  bool
}

// view returns committed balance + staged credits - staged debits
func (tx *Tx) view(k balanceKey) *uint256.Int {
	v := uint256.NewInt(tx.l.Balance(k.addr, k.asset))
	v.Add(v, uint256.NewInt(tx.credits[k]))
	return v.Sub(v, uint256.NewInt(tx.debits[k]))
}

// Balance returns the balance of addr in asset as seen by this tx
func (tx *Tx) Balance(addr common.Address, asset string) uint64 {
	v := tx.view(balanceKey{addr, asset})
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func (tx *Tx) touch(addr common.Address) {
	for _, a := range tx.order {
		if a == addr {
			return
		}
	}
	tx.order = append(tx.order, addr)
}

// Transfer moves amount of asset from one account to another on behalf of
// authority. It implements engine.Custody.
func (tx *Tx) Transfer(authority, from, to common.Address, asset string, amount uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return fmt.Errorf("transfer %s: %w", asset, ErrZeroAddress)
	}
	if want := tx.l.authorityOf(from); authority != want {
		return fmt.Errorf("%w: %s may not debit %s", ErrUnauthorized, authority.Hex(), from.Hex())
	}
	if amount == 0 {
		return nil
	}

	src, dst := balanceKey{from, asset}, balanceKey{to, asset}
	if have := tx.view(src); have.Lt(uint256.NewInt(amount)) {
		return fmt.Errorf("%w: %s has %s %s, needs %d", ErrInsufficientBalance, from.Hex(), have.Dec(), asset, amount)
	}
	if from == to {
		return nil
	}
	if next := new(uint256.Int).Add(tx.view(dst), uint256.NewInt(amount)); !next.IsUint64() {
		return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, to.Hex(), asset)
	}
	debit, credit := tx.debits[src]+amount, tx.credits[dst]+amount
	if debit < amount || credit < amount {
		return fmt.Errorf("%w: staged %s", ErrBalanceOverflow, asset)
	}

	tx.debits[src], tx.credits[dst] = debit, credit
	tx.touch(from)
	tx.touch(to)
	return nil
}

// Mint creates amount of asset in addr
func (tx *Tx) Mint(addr common.Address, asset string, amount uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("mint %s: %w", asset, ErrZeroAddress)
	}
	k := balanceKey{addr, asset}
	if next := new(uint256.Int).Add(tx.view(k), uint256.NewInt(amount)); !next.IsUint64() {
		return fmt.Errorf("%w: mint %d %s to %s", ErrBalanceOverflow, amount, asset, addr.Hex())
	}
	credit := tx.credits[k] + amount
	if credit < amount {
		return fmt.Errorf("%w: staged %s", ErrBalanceOverflow, asset)
	}
	tx.credits[k] = credit
	tx.touch(addr)
	return nil
}

// UseNonce consumes nonce for addr. A nonce must be greater than every
// nonce the identity used before; gaps are allowed.
func (tx *Tx) UseNonce(addr common.Address, nonce uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	use, ok := tx.nonces[addr]
	if !ok {
		base := tx.l.Nonce(addr)
		use = nonceUse{base: base, last: base}
	}
	if nonce <= use.last {
		return fmt.Errorf("%w: %d not above %d", ErrBadNonce, nonce, use.last)
	}
	use.last = nonce
	tx.nonces[addr] = use
	tx.touch(addr)
	return nil
}

// Commit applies the staged changes. persist, when non-nil, receives the
// updated accounts and must store them durably; if it fails nothing is
// applied. Commit re-checks every balance and nonce against the committed
// state because other transactions may have committed in between.
func (tx *Tx) Commit(persist func([]*Account) error) error {
	if tx.closed {
		return ErrTxClosed
	}

	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()

	updated := make(map[common.Address]*Account, len(tx.order))
	accounts := make([]*Account, 0, len(tx.order))
	for _, addr := range tx.order {
		acc, ok := l.accounts[addr]
		if ok {
			acc = acc.Clone()
		} else {
			acc = NewAccount(addr)
		}
		if use, ok := tx.nonces[addr]; ok {
			if acc.Nonce != use.base {
				return fmt.Errorf("%w: %s nonce moved to %d", ErrBadNonce, addr.Hex(), acc.Nonce)
			}
			acc.Nonce = use.last
		}
		updated[addr] = acc
		accounts = append(accounts, acc)
	}

	for k, amount := range tx.credits {
		acc := updated[k.addr]
		next := acc.Balances[k.asset] + amount
		if next < amount {
			return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, k.addr.Hex(), k.asset)
		}
		acc.Balances[k.asset] = next
	}
	for k, amount := range tx.debits {
		acc := updated[k.addr]
		if acc.Balances[k.asset] < amount {
			return fmt.Errorf("%w: %s %s changed during transaction", ErrInsufficientBalance, k.addr.Hex(), k.asset)
		}
		acc.Balances[k.asset] -= amount
		if acc.Balances[k.asset] == 0 {
			delete(acc.Balances, k.asset)
		}
	}

	if persist != nil {
		if err := persist(accounts); err != nil {
			return fmt.Errorf("persist accounts: %w", err)
		}
	}

	for addr, acc := range updated {
		l.accounts[addr] = acc
	}
	tx.closed = true

	l.logger.Debugw("ledger_commit", "accounts", len(accounts), "transfers", len(tx.debits))
	return nil
}

// Rollback discards everything staged
func (tx *Tx) Rollback() {
	tx.closed = true
	tx.credits = nil
	tx.debits = nil
	tx.nonces = nil
	tx.order = nil
}

// Closed reports whether the tx was committed or rolled back
func (tx *Tx) Closed() bool { return tx.closed }
