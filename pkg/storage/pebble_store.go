package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/account"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
)

// PebbleStore persists markets, order books, accounts and trade history.
// Values are JSON. Writes that belong to one operation go through a Batch.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a Pebble database at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	cache := pebble.NewCache(64 << 20) // 64MB block cache
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:                    cache,
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *PebbleStore) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// scan decodes every value under prefix, oldest key first unless reverse
// is set, stopping after limit values when limit > 0.
func scan[T any](s *PebbleStore, prefix []byte, reverse bool, limit int) ([]*T, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []*T
	valid := iter.First()
	if reverse {
		valid = iter.Last()
	}
	for valid && (limit <= 0 || len(out) < limit) {
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", iter.Key(), err)
		}
		out = append(out, &v)
		if reverse {
			valid = iter.Prev()
		} else {
			valid = iter.Next()
		}
	}
	return out, iter.Error()
}

// ============================================================================
// Markets
// ============================================================================

// SaveMarket persists a market
func (s *PebbleStore) SaveMarket(m *market.Market) error {
	return s.setJSON(marketKey(m.ID), m)
}

// LoadMarket loads a market; returns nil if it doesn't exist
func (s *PebbleStore) LoadMarket(id common.Hash) (*market.Market, error) {
	var m market.Market
	found, err := s.getJSON(marketKey(id), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// LoadMarkets loads every persisted market
func (s *PebbleStore) LoadMarkets() ([]*market.Market, error) {
	markets, err := scan[market.Market](s, []byte(prefixMarket), false, 0)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	for _, m := range markets {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("stored market %s: %w", m.ID.Hex(), err)
		}
	}
	return markets, nil
}

// ============================================================================
// Order books
// ============================================================================

// SaveBook persists the order book of a market
func (s *PebbleStore) SaveBook(ob *orderbook.OrderBook) error {
	return s.setJSON(bookKey(ob.Market), ob)
}

// LoadBook loads the order book of a market; returns nil if it doesn't exist.
// A stored book that violates the book invariants is an error.
func (s *PebbleStore) LoadBook(id common.Hash) (*orderbook.OrderBook, error) {
	var ob orderbook.OrderBook
	found, err := s.getJSON(bookKey(id), &ob)
	if err != nil || !found {
		return nil, err
	}
	if ob.Market != id {
		return nil, fmt.Errorf("stored book %s: %w", id.Hex(), orderbook.ErrMarketMismatch)
	}
	if err := ob.Validate(); err != nil {
		return nil, fmt.Errorf("stored book %s: %w", id.Hex(), err)
	}
	return &ob, nil
}

// ============================================================================
// Accounts
// ============================================================================

// SaveAccount persists an account
func (s *PebbleStore) SaveAccount(acc *account.Account) error {
	return s.setJSON(accountKey(acc.Address), acc)
}

// LoadAccount loads an account; returns nil if it doesn't exist
func (s *PebbleStore) LoadAccount(addr common.Address) (*account.Account, error) {
	var acc account.Account
	found, err := s.getJSON(accountKey(addr), &acc)
	if err != nil || !found {
		return nil, err
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]uint64)
	}
	return &acc, nil
}

// LoadAccounts loads every persisted account
func (s *PebbleStore) LoadAccounts() ([]*account.Account, error) {
	accounts, err := scan[account.Account](s, []byte(prefixAccount), false, 0)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, acc := range accounts {
		if acc.Balances == nil {
			acc.Balances = make(map[string]uint64)
		}
	}
	return accounts, nil
}

// ============================================================================
// Trades
// ============================================================================

// SaveTrade persists a trade
func (s *PebbleStore) SaveTrade(tr *engine.Trade) error {
	return s.setJSON(tradeKey(tr.Market, tr.Timestamp, tr.ID), tr)
}

// LoadRecentTrades loads the most recent trades of a market, newest first
func (s *PebbleStore) LoadRecentTrades(id common.Hash, limit int) ([]*engine.Trade, error) {
	trades, err := scan[engine.Trade](s, tradePrefix(id), true, limit)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	return trades, nil
}

// ============================================================================
// Batch
// ============================================================================

// Batch groups the writes of one operation into a single atomic commit
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer
func (s *PebbleStore) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) set(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.batch.Set(key, data, nil)
}

// SaveMarket adds a market save to the batch
func (b *Batch) SaveMarket(m *market.Market) error {
	return b.set(marketKey(m.ID), m)
}

// SaveBook adds a book save to the batch
func (b *Batch) SaveBook(ob *orderbook.OrderBook) error {
	return b.set(bookKey(ob.Market), ob)
}

// SaveAccounts adds account saves to the batch
func (b *Batch) SaveAccounts(accounts []*account.Account) error {
	for _, acc := range accounts {
		if err := b.set(accountKey(acc.Address), acc); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrade adds a trade save to the batch
func (b *Batch) SaveTrade(tr *engine.Trade) error {
	return b.set(tradeKey(tr.Market, tr.Timestamp, tr.ID), tr)
}

// Commit writes the batch to Pebble atomically
func (b *Batch) Commit() error {
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Close releases the batch; uncommitted writes are discarded
func (b *Batch) Close() error {
	return b.batch.Close()
}
