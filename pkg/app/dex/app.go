// Package dex runs the matching engine against persistent state. Every
// operation executes on a copy of the market's book inside a ledger
// transaction, and the resulting balances, book and trades are written to
// Pebble in one batch before the copy replaces the live book.
package dex

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/account"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/transaction"
	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
	"github.com/uhyunpark/orderbook-dex/pkg/storage"
	"github.com/uhyunpark/orderbook-dex/pkg/util"
)

var (
	ErrFaucetDisabled = errors.New("faucet disabled")
	ErrFaucetOverflow = errors.New("faucet amount overflows")
)

// FaucetConfig sets the airdrop amounts in whole tokens
type FaucetConfig struct {
	Enabled     bool
	BaseAmount  uint64
	QuoteAmount uint64
}

type Options struct {
	Engine  engine.Config
	Faucet  FaucetConfig
	ChainID int64
	Clock   util.Clock         // defaults to RealClock
	Logger  *zap.SugaredLogger // defaults to Nop
}

// Authorizer runs inside an operation's ledger transaction before the
// engine does. Signed requests use it to consume their nonce so the nonce
// and the operation commit together.
type Authorizer func(tx *account.Tx) error

type bookState struct {
	mu   sync.Mutex
	book *orderbook.OrderBook
}

// OpenOrder is a resting order together with its market and side
type OpenOrder struct {
	Market common.Hash    `json:"market"`
	Symbol string         `json:"symbol"`
	Side   orderbook.Side `json:"side"`
	orderbook.LimitOrder
}

type App struct {
	registry *market.MarketRegistry
	ledger   *account.Ledger
	store    *storage.PebbleStore
	engine   *engine.Engine
	verifier *transaction.Verifier
	faucet   FaucetConfig
	clock    util.Clock
	logger   *zap.SugaredLogger

	createMu sync.Mutex // serializes market creation

	mu    sync.RWMutex
	books map[common.Hash]*bookState

	listenersMu    sync.RWMutex
	tradeListeners []func(*engine.Trade)
	bookListeners  []func(*market.Market, *orderbook.OrderBook)
}

// New builds the app on top of store and restores every persisted market,
// book and account.
func New(store *storage.PebbleStore, opts Options) (*App, error) {
	if store == nil {
		return nil, errors.New("dex: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clock := opts.Clock
	if clock == nil {
		clock = util.RealClock{}
	}

	eng, err := engine.New(opts.Engine, logger.Named("engine"))
	if err != nil {
		return nil, err
	}

	a := &App{
		registry: market.NewMarketRegistry(),
		ledger:   account.NewLedger(logger.Named("ledger")),
		store:    store,
		engine:   eng,
		verifier: transaction.NewVerifier(crypto.DefaultDomain(opts.ChainID)),
		faucet:   opts.Faucet,
		clock:    clock,
		logger:   logger,
		books:    make(map[common.Hash]*bookState),
	}
	if err := a.restore(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) restore() error {
	accounts, err := a.store.LoadAccounts()
	if err != nil {
		return err
	}
	if err := a.ledger.Restore(accounts); err != nil {
		return err
	}

	markets, err := a.store.LoadMarkets()
	if err != nil {
		return err
	}
	for _, m := range markets {
		book, err := a.store.LoadBook(m.ID)
		if err != nil {
			return err
		}
		if book == nil {
			book = orderbook.NewOrderBook(m.ID)
		}
		if err := a.install(m, book); err != nil {
			return err
		}
		a.checkCustody(m, book)
	}

	a.logger.Infow("state_restored", "markets", len(markets), "accounts", len(accounts))
	return nil
}

// install registers custody and makes the market live
func (a *App) install(m *market.Market, book *orderbook.OrderBook) error {
	if err := a.ledger.RegisterCustody(m.BaseCustody, m.Authority()); err != nil {
		return err
	}
	if err := a.ledger.RegisterCustody(m.QuoteCustody, m.Authority()); err != nil {
		return err
	}
	if err := a.registry.RegisterMarket(m); err != nil {
		return err
	}
	a.mu.Lock()
	a.books[m.ID] = &bookState{book: book}
	a.mu.Unlock()
	return nil
}

// checkCustody warns when custody balances no longer cover resting orders
func (a *App) checkCustody(m *market.Market, book *orderbook.OrderBook) {
	var bidLocks, askLocks uint64
	for _, o := range book.Bids.Orders() {
		bidLocks += o.Locked
	}
	for _, o := range book.Asks.Orders() {
		askLocks += o.Amount
	}
	quote := a.ledger.Balance(m.QuoteCustody, m.QuoteAsset)
	base := a.ledger.Balance(m.BaseCustody, m.BaseAsset)
	if quote < bidLocks || base < askLocks {
		a.logger.Warnw("custody_shortfall",
			"market", m.Symbol(),
			"quote_custody", quote, "bid_locks", bidLocks,
			"base_custody", base, "ask_locks", askLocks,
		)
	}
}

// OnTrade registers fn to be called with every committed trade
func (a *App) OnTrade(fn func(*engine.Trade)) {
	a.listenersMu.Lock()
	a.tradeListeners = append(a.tradeListeners, fn)
	a.listenersMu.Unlock()
}

// OnBookUpdate registers fn to be called with a snapshot after every
// committed change to a book
func (a *App) OnBookUpdate(fn func(*market.Market, *orderbook.OrderBook)) {
	a.listenersMu.Lock()
	a.bookListeners = append(a.bookListeners, fn)
	a.listenersMu.Unlock()
}

func (a *App) notify(m *market.Market, book *orderbook.OrderBook, trades []*engine.Trade) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, tr := range trades {
		for _, fn := range a.tradeListeners {
			fn(tr)
		}
	}
	if book != nil {
		for _, fn := range a.bookListeners {
			fn(m, book)
		}
	}
}

func (a *App) lookup(id common.Hash) (*market.Market, *bookState, error) {
	m, err := a.registry.GetMarket(id)
	if err != nil {
		return nil, nil, err
	}
	a.mu.RLock()
	st, ok := a.books[id]
	a.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: no book for %s", market.ErrMarketNotFound, id.Hex())
	}
	return m, st, nil
}

// commit commits tx and writes the touched accounts plus whatever write
// adds in one Pebble batch
func (a *App) commit(tx *account.Tx, write func(b *storage.Batch) error) error {
	return tx.Commit(func(accounts []*account.Account) error {
		b := a.store.NewBatch()
		defer b.Close()
		if err := b.SaveAccounts(accounts); err != nil {
			return err
		}
		if write != nil {
			if err := write(b); err != nil {
				return err
			}
		}
		return b.Commit()
	})
}

// mutate runs fn on a clone of the market's book. When fn succeeds the
// ledger tx, the clone and the writes fn returns are committed together and
// the clone becomes the live book; otherwise nothing changes. It returns a
// snapshot of the new book, or nil when fn left the book untouched.
func (a *App) mutate(
	id common.Hash,
	auth Authorizer,
	fn func(m *market.Market, book *orderbook.OrderBook, tx *account.Tx) (changed bool, write func(*storage.Batch) error, err error),
) (*market.Market, *orderbook.OrderBook, error) {
	m, st, err := a.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	book := st.book.Clone()
	tx := a.ledger.Begin()
	defer tx.Rollback()

	if auth != nil {
		if err := auth(tx); err != nil {
			return nil, nil, err
		}
	}
	changed, write, err := fn(m, book, tx)
	if err != nil {
		return nil, nil, err
	}

	err = a.commit(tx, func(b *storage.Batch) error {
		if changed {
			if err := b.SaveBook(book); err != nil {
				return err
			}
		}
		if write != nil {
			return write(b)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if !changed {
		return m, nil, nil
	}
	st.book = book
	return m, book.Clone(), nil
}

// ============================================================================
// Operations
// ============================================================================

// CreateMarket creates a trading pair with an empty book
func (a *App) CreateMarket(p market.Params) (*market.Market, error) {
	return a.createMarket(p, nil)
}

func (a *App) createMarket(p market.Params, auth Authorizer) (*market.Market, error) {
	m, err := market.NewMarket(p)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = a.clock.Now().UnixMilli()

	a.createMu.Lock()
	defer a.createMu.Unlock()

	if a.registry.Exists(m.ID) {
		return nil, fmt.Errorf("%w: %s", market.ErrMarketExists, m.Symbol())
	}

	book := orderbook.NewOrderBook(m.ID)
	tx := a.ledger.Begin()
	defer tx.Rollback()
	if auth != nil {
		if err := auth(tx); err != nil {
			return nil, err
		}
	}
	err = a.commit(tx, func(b *storage.Batch) error {
		if err := b.SaveMarket(m); err != nil {
			return err
		}
		return b.SaveBook(book)
	})
	if err != nil {
		return nil, fmt.Errorf("persist market %s: %w", m.Symbol(), err)
	}
	if err := a.install(m, book); err != nil {
		return nil, err
	}

	a.logger.Infow("market_created",
		"market", m.Symbol(),
		"id", m.ID.Hex(),
		"fee_bps", m.FeeBps,
		"creator", m.Creator.Hex(),
	)
	return m, nil
}

// EnsureMarkets creates every listed market that does not exist yet and
// returns how many were created
func (a *App) EnsureMarkets(params []market.Params) (int, error) {
	created := 0
	for _, p := range params {
		if a.registry.Exists(market.DeriveID(p.BaseAsset, p.QuoteAsset)) {
			continue
		}
		if _, err := a.CreateMarket(p); err != nil {
			return created, fmt.Errorf("genesis market %s-%s: %w", p.BaseAsset, p.QuoteAsset, err)
		}
		created++
	}
	return created, nil
}

// PlaceOrder locks the order's funds and rests it on the book
func (a *App) PlaceOrder(id common.Hash, req engine.PlaceRequest) (orderbook.LimitOrder, error) {
	return a.placeOrder(id, req, nil)
}

func (a *App) placeOrder(id common.Hash, req engine.PlaceRequest, auth Authorizer) (orderbook.LimitOrder, error) {
	var order orderbook.LimitOrder
	m, snap, err := a.mutate(id, auth, func(m *market.Market, book *orderbook.OrderBook, tx *account.Tx) (bool, func(*storage.Batch) error, error) {
		var err error
		order, err = a.engine.Place(m, book, tx, req)
		return err == nil, nil, err
	})
	if err != nil {
		return orderbook.LimitOrder{}, err
	}

	a.logger.Infow("order_placed",
		"market", m.Symbol(),
		"side", req.Side.String(),
		"order_id", order.OrderID,
		"price", order.Price,
		"amount", order.Amount,
		"owner", order.Owner.Hex(),
	)
	a.notify(m, snap, nil)
	return order, nil
}

// CancelOrder removes the owner's order and refunds its lock. A miss is not
// an error.
func (a *App) CancelOrder(id common.Hash, owner common.Address, side orderbook.Side, orderID uint64) (engine.CancelResult, error) {
	return a.cancelOrder(id, owner, side, orderID, nil)
}

func (a *App) cancelOrder(id common.Hash, owner common.Address, side orderbook.Side, orderID uint64, auth Authorizer) (engine.CancelResult, error) {
	var res engine.CancelResult
	m, snap, err := a.mutate(id, auth, func(m *market.Market, book *orderbook.OrderBook, tx *account.Tx) (bool, func(*storage.Batch) error, error) {
		var err error
		res, err = a.engine.Cancel(m, book, tx, owner, side, orderID)
		return err == nil && res.Found, nil, err
	})
	if err != nil {
		return engine.CancelResult{}, err
	}

	if res.Found {
		a.logger.Infow("order_cancelled",
			"market", m.Symbol(),
			"side", side.String(),
			"order_id", orderID,
			"refund", res.Refund,
			"asset", res.Asset,
		)
	}
	a.notify(m, snap, nil)
	return res, nil
}

// MatchOrders runs one matching pass; cranker collects the reward
func (a *App) MatchOrders(id common.Hash, cranker common.Address) (*engine.MatchResult, []*engine.Trade, error) {
	return a.matchOrders(id, cranker, nil)
}

func (a *App) matchOrders(id common.Hash, cranker common.Address, auth Authorizer) (*engine.MatchResult, []*engine.Trade, error) {
	var (
		res    *engine.MatchResult
		trades []*engine.Trade
	)
	m, snap, err := a.mutate(id, auth, func(m *market.Market, book *orderbook.OrderBook, tx *account.Tx) (bool, func(*storage.Batch) error, error) {
		var err error
		res, err = a.engine.Match(m, book, tx, cranker)
		if err != nil {
			return false, nil, err
		}
		trades = a.tradesOf(m, cranker, res.Fills)
		return true, func(b *storage.Batch) error {
			for _, tr := range trades {
				if err := b.SaveTrade(tr); err != nil {
					return err
				}
			}
			return nil
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(trades) > 0 {
		a.logger.Infow("trades_committed",
			"market", m.Symbol(),
			"trades", len(trades),
			"total_fee", res.TotalFee,
			"cranker", cranker.Hex(),
		)
	}
	if len(trades) == 0 {
		snap = nil
	}
	a.notify(m, snap, trades)
	return res, trades, nil
}

func (a *App) tradesOf(m *market.Market, cranker common.Address, fills []engine.Fill) []*engine.Trade {
	ts := a.clock.Now().UnixMilli()
	trades := make([]*engine.Trade, 0, len(fills))
	for _, f := range fills {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		trades = append(trades, &engine.Trade{
			ID:        id.String(),
			Market:    m.ID,
			Symbol:    m.Symbol(),
			Timestamp: ts,
			Cranker:   cranker,
			Fill:      f,
		})
	}
	return trades
}

// Airdrop mints the faucet amounts of both assets of a market to owner
func (a *App) Airdrop(id common.Hash, owner common.Address) (map[string]uint64, error) {
	if !a.faucet.Enabled {
		return nil, ErrFaucetDisabled
	}
	m, err := a.registry.GetMarket(id)
	if err != nil {
		return nil, err
	}

	base, overflow := math.SafeMul(a.faucet.BaseAmount, m.BaseScale())
	if overflow {
		return nil, fmt.Errorf("%w: %d %s", ErrFaucetOverflow, a.faucet.BaseAmount, m.BaseAsset)
	}
	quote, overflow := math.SafeMul(a.faucet.QuoteAmount, m.QuoteScale())
	if overflow {
		return nil, fmt.Errorf("%w: %d %s", ErrFaucetOverflow, a.faucet.QuoteAmount, m.QuoteAsset)
	}

	tx := a.ledger.Begin()
	defer tx.Rollback()
	if err := tx.Mint(owner, m.BaseAsset, base); err != nil {
		return nil, err
	}
	if err := tx.Mint(owner, m.QuoteAsset, quote); err != nil {
		return nil, err
	}
	if err := a.commit(tx, nil); err != nil {
		return nil, err
	}

	a.logger.Infow("airdrop", "market", m.Symbol(), "owner", owner.Hex(), "base", base, "quote", quote)
	return map[string]uint64{m.BaseAsset: base, m.QuoteAsset: quote}, nil
}

// ============================================================================
// Queries
// ============================================================================

// ListMarkets returns all markets sorted by symbol
func (a *App) ListMarkets() []*market.Market { return a.registry.ListMarkets() }

// GetMarket returns a market by id
func (a *App) GetMarket(id common.Hash) (*market.Market, error) { return a.registry.GetMarket(id) }

// GetMarketBySymbol returns a market by its "BASE-QUOTE" symbol
func (a *App) GetMarketBySymbol(symbol string) (*market.Market, error) {
	return a.registry.GetBySymbol(symbol)
}

// Book returns a snapshot of a market's order book
func (a *App) Book(id common.Hash) (*orderbook.OrderBook, error) {
	_, st, err := a.lookup(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.Clone(), nil
}

// OpenOrders returns every resting order of owner across all markets
func (a *App) OpenOrders(owner common.Address) []OpenOrder {
	var out []OpenOrder
	for _, m := range a.registry.ListMarkets() {
		book, err := a.Book(m.ID)
		if err != nil {
			continue
		}
		bids, asks := book.OrdersOf(owner)
		for _, o := range bids {
			out = append(out, OpenOrder{Market: m.ID, Symbol: m.Symbol(), Side: orderbook.Bid, LimitOrder: o})
		}
		for _, o := range asks {
			out = append(out, OpenOrder{Market: m.ID, Symbol: m.Symbol(), Side: orderbook.Ask, LimitOrder: o})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Balances returns every non-zero balance of owner
func (a *App) Balances(owner common.Address) map[string]uint64 { return a.ledger.Balances(owner) }

// Nonce returns the highest request nonce owner has used
func (a *App) Nonce(owner common.Address) uint64 { return a.ledger.Nonce(owner) }

// RecentTrades returns the latest trades of a market, newest first
func (a *App) RecentTrades(id common.Hash, limit int) ([]*engine.Trade, error) {
	if _, err := a.registry.GetMarket(id); err != nil {
		return nil, err
	}
	return a.store.LoadRecentTrades(id, limit)
}

// Ledger exposes the balance ledger
func (a *App) Ledger() *account.Ledger { return a.ledger }

// Verifier returns the signature verifier for this deployment's domain
func (a *App) Verifier() *transaction.Verifier { return a.verifier }

// FaucetEnabled reports whether Airdrop is available
func (a *App) FaucetEnabled() bool { return a.faucet.Enabled }
