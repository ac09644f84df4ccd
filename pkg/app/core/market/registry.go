package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MarketRegistry manages all markets in a thread-safe manner
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[common.Hash]*Market // id -> market
}

// NewMarketRegistry creates an empty market registry
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		markets: make(map[common.Hash]*Market),
	}
}

// RegisterMarket adds a new market to the registry
// Returns ErrMarketExists if the pair is already registered
func (mr *MarketRegistry) RegisterMarket(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.markets[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrMarketExists, m.Symbol())
	}

	mr.markets[m.ID] = m
	return nil
}

// GetMarket retrieves a market by id
func (mr *MarketRegistry) GetMarket(id common.Hash) (*Market, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	m, exists := mr.markets[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id.Hex())
	}

	return m, nil
}

// GetBySymbol looks a market up by its "BASE-QUOTE" symbol
func (mr *MarketRegistry) GetBySymbol(symbol string) (*Market, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	for _, m := range mr.markets {
		if m.Symbol() == symbol {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, symbol)
}

// ListMarkets returns all registered markets sorted by symbol
func (mr *MarketRegistry) ListMarkets() []*Market {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	markets := make([]*Market, 0, len(mr.markets))
	for _, m := range mr.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Symbol() < markets[j].Symbol()
	})

	return markets
}

// Count returns the total number of registered markets
func (mr *MarketRegistry) Count() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.markets)
}

// Exists checks if a market is registered
func (mr *MarketRegistry) Exists(id common.Hash) bool {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, exists := mr.markets[id]
	return exists
}
