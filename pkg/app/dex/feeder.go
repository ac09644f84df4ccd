package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/transaction"
	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
)

// FeederConfig controls devnet load generation
type FeederConfig struct {
	Market      string        // Symbol of the market to trade
	NumAccounts int           // Number of simulated traders
	BatchSize   int           // Signed orders per tick
	Interval    time.Duration // How often to submit a batch
	CrankEvery  int           // Submit a signed match after every N batches
	SpreadBps   uint64        // Prices are drawn from mid ± SpreadBps
	Seed        int64         // 0 picks a time based seed
}

// DefaultFeederConfig returns modest load for local testing
func DefaultFeederConfig(symbol string) FeederConfig {
	return FeederConfig{
		Market:      symbol,
		NumAccounts: 20,
		BatchSize:   10,
		Interval:    200 * time.Millisecond,
		CrankEvery:  5,
		SpreadBps:   200,
	}
}

// FeederStats counts what the feeder submitted
type FeederStats struct {
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Cranks    int `json:"cranks"`
	Trades    int `json:"trades"`
}

// SignedTxGenerator creates signed requests from a fixed set of traders.
// It is not safe for concurrent use.
type SignedTxGenerator struct {
	signers []*crypto.Signer
	cranker *crypto.Signer
	market  *market.Market
	rng     *rand.Rand
	nonces  map[common.Address]uint64
	eip712  *crypto.EIP712Signer

	mid       uint64 // quote minor units per whole base unit
	spreadBps uint64
	maxAmount uint64 // base minor units
}

// NewSignedTxGenerator creates numAccounts fresh traders for m
func NewSignedTxGenerator(m *market.Market, eip712 *crypto.EIP712Signer, numAccounts int, spreadBps uint64, seed int64) (*SignedTxGenerator, error) {
	if numAccounts <= 0 {
		return nil, errors.New("feeder needs at least one account")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	signers := make([]*crypto.Signer, numAccounts)
	for i := range signers {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		signers[i] = s
	}
	cranker, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return &SignedTxGenerator{
		signers:   signers,
		cranker:   cranker,
		market:    m,
		rng:       rand.New(rand.NewSource(seed)),
		nonces:    make(map[common.Address]uint64),
		eip712:    eip712,
		mid:       100 * m.QuoteScale(),
		spreadBps: spreadBps,
		maxAmount: m.BaseScale(),
	}, nil
}

func (g *SignedTxGenerator) nextNonce(addr common.Address) *big.Int {
	g.nonces[addr]++
	return new(big.Int).SetUint64(g.nonces[addr])
}

func (g *SignedTxGenerator) sign(key *crypto.Signer, msg crypto.TypedMessage) (*transaction.SignedTransaction, error) {
	tx, err := transaction.Wrap(msg)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(g.eip712, key); err != nil {
		return nil, err
	}
	return tx, nil
}

// GenerateSignedOrder creates a signed limit order from a random trader
func (g *SignedTxGenerator) GenerateSignedOrder() (*transaction.SignedTransaction, error) {
	signer := g.signers[g.rng.Intn(len(g.signers))]

	// Random side: 50% bid, 50% ask
	side := orderbook.Bid
	if g.rng.Intn(2) == 1 {
		side = orderbook.Ask
	}

	// Random price around mid (± spread)
	width := g.mid * g.spreadBps / 10000
	price := g.mid
	if width > 0 {
		price = g.mid - width + uint64(g.rng.Int63n(int64(2*width+1)))
	}
	if price == 0 {
		price = 1
	}

	// Random amount: 1% to 100% of a whole base unit
	step := max(g.maxAmount/100, 1)
	amount := step * uint64(g.rng.Intn(100)+1)

	return g.sign(signer, &crypto.PlaceOrderEIP712{
		Market: g.market.ID,
		Side:   uint8(side),
		Price:  new(big.Int).SetUint64(price),
		Amount: new(big.Int).SetUint64(amount),
		Nonce:  g.nextNonce(signer.Address()),
		Owner:  signer.Address(),
	})
}

// GenerateSignedMatch creates a signed crank from the generator's cranker
func (g *SignedTxGenerator) GenerateSignedMatch() (*transaction.SignedTransaction, error) {
	addr := g.cranker.Address()
	return g.sign(g.cranker, &crypto.MatchOrdersEIP712{
		Market:  g.market.ID,
		Nonce:   g.nextNonce(addr),
		Cranker: addr,
	})
}

// Signers returns the simulated traders
func (g *SignedTxGenerator) Signers() []*crypto.Signer { return g.signers }

// Cranker returns the identity that signs match requests
func (g *SignedTxGenerator) Cranker() common.Address { return g.cranker.Address() }

// Feeder pushes generated signed requests through ApplySignedTx
type Feeder struct {
	app     *App
	gen     *SignedTxGenerator
	cfg     FeederConfig
	stats   FeederStats
	batches int
}

// NewFeeder resolves the market, creates the traders and funds each of them
// from the faucet
func NewFeeder(app *App, cfg FeederConfig) (*Feeder, error) {
	if cfg.BatchSize <= 0 || cfg.Interval <= 0 {
		return nil, errors.New("feeder batch size and interval must be positive")
	}
	m, err := app.GetMarketBySymbol(cfg.Market)
	if err != nil {
		return nil, err
	}
	gen, err := NewSignedTxGenerator(m, app.Verifier().Signer(), cfg.NumAccounts, cfg.SpreadBps, cfg.Seed)
	if err != nil {
		return nil, err
	}
	for _, s := range gen.Signers() {
		if _, err := app.Airdrop(m.ID, s.Address()); err != nil {
			return nil, fmt.Errorf("fund trader %s: %w", s.Address().Hex(), err)
		}
	}
	return &Feeder{app: app, gen: gen, cfg: cfg}, nil
}

// Step submits one batch and, every CrankEvery batches, one match
func (f *Feeder) Step() error {
	for i := 0; i < f.cfg.BatchSize; i++ {
		tx, err := f.gen.GenerateSignedOrder()
		if err != nil {
			return err
		}
		if _, err := f.app.ApplySignedTx(tx); err != nil {
			// Full books and exhausted balances are expected under load
			f.stats.Rejected++
			f.app.logger.Debugw("feeder_order_rejected", "err", err)
			continue
		}
		f.stats.Submitted++
	}

	f.batches++
	if f.cfg.CrankEvery > 0 && f.batches%f.cfg.CrankEvery == 0 {
		tx, err := f.gen.GenerateSignedMatch()
		if err != nil {
			return err
		}
		r, err := f.app.ApplySignedTx(tx)
		if err != nil {
			return fmt.Errorf("crank: %w", err)
		}
		f.stats.Cranks++
		f.stats.Trades += len(r.Trades)
	}
	return nil
}

// Run steps every Interval until ctx is done
func (f *Feeder) Run(ctx context.Context) FeederStats {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	startTime := time.Now()
	f.app.logger.Infow("feeder_started",
		"market", f.cfg.Market,
		"accounts", f.cfg.NumAccounts,
		"batch", f.cfg.BatchSize,
		"interval", f.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			f.app.logger.Infow("feeder_stopped",
				"elapsed", time.Since(startTime).Round(time.Second),
				"submitted", f.stats.Submitted,
				"rejected", f.stats.Rejected,
				"trades", f.stats.Trades)
			return f.stats
		case <-ticker.C:
			if err := f.Step(); err != nil {
				f.app.logger.Warnw("feeder_step_failed", "err", err)
			}
		}
	}
}

// Stats returns the counters so far
func (f *Feeder) Stats() FeederStats { return f.stats }

// Generator exposes the request generator
func (f *Feeder) Generator() *SignedTxGenerator { return f.gen }
