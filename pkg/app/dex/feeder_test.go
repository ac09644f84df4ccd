package dex

import (
	"context"
	"testing"
	"time"
)

func TestFeederKeepsBookUncrossedAndConservesSupply(t *testing.T) {
	app := newTestApp(t)
	m := createSOL(t, app)

	cfg := FeederConfig{
		Market:      m.Symbol(),
		NumAccounts: 5,
		BatchSize:   10,
		Interval:    time.Millisecond,
		CrankEvery:  1,
		SpreadBps:   500,
		Seed:        42,
	}
	f, err := NewFeeder(app, cfg)
	if err != nil {
		t.Fatalf("new feeder: %v", err)
	}

	const steps = 10
	for i := 0; i < steps; i++ {
		if err := f.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		book, err := app.Book(m.ID)
		if err != nil {
			t.Fatalf("book: %v", err)
		}
		if book.Crossed() {
			t.Fatalf("book crossed after crank %d", i)
		}
	}

	stats := f.Stats()
	if stats.Submitted+stats.Rejected != steps*cfg.BatchSize || stats.Cranks != steps {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Submitted == 0 {
		t.Errorf("no order accepted: %+v", stats)
	}
	if got, want := app.Ledger().Supply("USDC"), uint64(cfg.NumAccounts)*10000; got != want {
		t.Errorf("USDC supply = %d, want %d", got, want)
	}
	if got, want := app.Ledger().Supply("SOL"), uint64(cfg.NumAccounts)*1000; got != want {
		t.Errorf("SOL supply = %d, want %d", got, want)
	}

	recent, err := app.RecentTrades(m.ID, 10_000)
	if err != nil || len(recent) != stats.Trades {
		t.Errorf("recent trades = %d, %v; feeder counted %d", len(recent), err, stats.Trades)
	}
	if n := app.Nonce(f.Generator().Cranker()); n != steps {
		t.Errorf("cranker nonce = %d, want %d", n, steps)
	}
	t.Logf("✓ feeder: %+v", stats)
}

func TestFeederRunStopsOnCancel(t *testing.T) {
	app := newTestApp(t)
	m := createSOL(t, app)

	f, err := NewFeeder(app, DefaultFeederConfig(m.Symbol()))
	if err != nil {
		t.Fatalf("new feeder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if stats := f.Run(ctx); stats.Submitted != 0 {
		t.Errorf("cancelled run submitted %d orders", stats.Submitted)
	}
}

func TestNewFeederValidation(t *testing.T) {
	app := newTestApp(t)
	m := createSOL(t, app)

	bad := DefaultFeederConfig("DOGE-USDC")
	if _, err := NewFeeder(app, bad); err == nil {
		t.Error("unknown market accepted")
	}
	bad = DefaultFeederConfig(m.Symbol())
	bad.NumAccounts = 0
	if _, err := NewFeeder(app, bad); err == nil {
		t.Error("zero accounts accepted")
	}
}
