package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/orderbook-dex/params"
	"github.com/uhyunpark/orderbook-dex/pkg/api"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/dex"
	"github.com/uhyunpark/orderbook-dex/pkg/metrics"
	"github.com/uhyunpark/orderbook-dex/pkg/storage"
	"github.com/uhyunpark/orderbook-dex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (console, plus file when LOG_FILE is set)
	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Node.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	// ---- Storage ----
	store, err := storage.NewPebbleStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			sugar.Errorw("storage_close_failed", "err", err)
		}
	}()

	// ---- App: matching engine over persisted markets and balances ----
	app, err := dex.New(store, dex.Options{
		Engine: engine.Config{
			FeeCollector:  cfg.Matching.FeeCollector,
			CrankerReward: cfg.Matching.CrankerReward,
			RewardDivisor: cfg.Matching.RewardDivisor,
		},
		Faucet: dex.FaucetConfig{
			Enabled:     cfg.Faucet.Enabled,
			BaseAmount:  cfg.Faucet.BaseAmount,
			QuoteAmount: cfg.Faucet.QuoteAmount,
		},
		ChainID: cfg.Node.ChainID,
		Logger:  sugar.Named("dex"),
	})
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	genesis := make([]market.Params, len(cfg.Matching.Genesis))
	for i, g := range cfg.Matching.Genesis {
		genesis[i] = market.Params{
			BaseAsset:     g.BaseAsset,
			QuoteAsset:    g.QuoteAsset,
			BaseDecimals:  g.BaseDecimals,
			QuoteDecimals: g.QuoteDecimals,
			FeeBps:        cfg.Matching.DefaultFeeBps,
			Creator:       cfg.Matching.FeeCollector,
		}
	}
	created, err := app.EnsureMarkets(genesis)
	if err != nil {
		sugar.Fatalw("genesis_markets_failed", "err", err)
	}

	sugar.Infow("node_starting",
		"data_dir", cfg.Node.DataDir,
		"markets", len(app.ListMarkets()),
		"genesis_created", created,
		"chain_id", cfg.Node.ChainID,
		"cranker_reward", cfg.Matching.CrankerReward,
		"faucet", cfg.Faucet.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MARKET=SOL-USDC
	feederDone := make(chan struct{})
	if cfg.TxGen.Enabled {
		feeder, err := dex.NewFeeder(app, dex.DefaultFeederConfig(cfg.TxGen.Market))
		if err != nil {
			sugar.Fatalw("txgen_init_failed", "market", cfg.TxGen.Market, "err", err)
		}
		go func() {
			defer close(feederDone)
			feeder.Run(ctx)
		}()
	} else {
		close(feederDone)
		sugar.Info("txgen_disabled")
	}

	// ---- API Server ----
	// HTTP/WebSocket server for frontend and crankers; returns once ctx is
	// cancelled and in-flight requests are drained
	apiServer := api.NewServer(app, metrics.New(), cfg.Node.CORSOrigins, sugar.Named("api"))
	if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		stop()
	}
	// The store closes on return; wait for the feeder to leave it
	<-feederDone
	sugar.Info("node_stopped")
}
