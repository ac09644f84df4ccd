package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Node struct {
	DataDir     string   // Pebble directory
	APIAddr     string   // REST + WebSocket listen address
	LogFile     string   // Optional; logs are tee'd to this file when set
	LogLevel    string   // debug, info, warn, error
	CORSOrigins []string // Allowed browser origins
	ChainID     int64    // EIP-712 domain chain id
}

type Matching struct {
	FeeCollector  common.Address // Receives the protocol share of fees
	CrankerReward bool           // Pay crankers a share of each fill's fee
	RewardDivisor uint64         // Cranker reward = fee / RewardDivisor
	DefaultFeeBps uint16         // Fee of genesis markets
	// Markets created at startup when absent, e.g. "SOL-USDC:9:6"
	Genesis []GenesisMarket
}

// GenesisMarket is one market listed in GENESIS_MARKETS
type GenesisMarket struct {
	BaseAsset     string
	QuoteAsset    string
	BaseDecimals  uint8
	QuoteDecimals uint8
}

// ParseGenesisMarkets parses a comma separated list of
// BASE-QUOTE:baseDecimals:quoteDecimals entries
func ParseGenesisMarkets(s string) ([]GenesisMarket, error) {
	var out []GenesisMarket
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("genesis market %q: want BASE-QUOTE:baseDecimals:quoteDecimals", entry)
		}
		base, quote, ok := strings.Cut(parts[0], "-")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("genesis market %q: bad symbol", entry)
		}
		bd, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("genesis market %q: base decimals: %w", entry, err)
		}
		qd, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("genesis market %q: quote decimals: %w", entry, err)
		}
		out = append(out, GenesisMarket{BaseAsset: base, QuoteAsset: quote, BaseDecimals: uint8(bd), QuoteDecimals: uint8(qd)})
	}
	return out, nil
}

type Faucet struct {
	Enabled bool
	// Whole tokens; scaled by each asset's decimals when minted
	BaseAmount  uint64
	QuoteAmount uint64
}

// TxGen drives the devnet load generator
type TxGen struct {
	Enabled bool
	Market  string // Symbol the generator trades
}

type Config struct {
	Node     Node
	Matching Matching
	Faucet   Faucet
	TxGen    TxGen
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:     "./data/orderbook",
			APIAddr:     ":8080",
			LogLevel:    "info",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			ChainID:     1337,
		},
		Matching: Matching{
			FeeCollector:  common.HexToAddress("0x000000000000000000000000000000000000fee1"),
			CrankerReward: true,
			RewardDivisor: 10,
			DefaultFeeBps: 30,
		},
		Faucet: Faucet{
			Enabled:     true,
			BaseAmount:  1000,
			QuoteAmount: 10000,
		},
		TxGen: TxGen{Market: "SOL-USDC"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Optional - won't fail if not exists
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		// Example: "http://localhost:3000,https://app.example.com"
		cfg.Node.CORSOrigins = strings.Split(origins, ",")
	}

	if collector := os.Getenv("FEE_COLLECTOR"); collector != "" {
		if !common.IsHexAddress(collector) {
			return cfg, fmt.Errorf("FEE_COLLECTOR: invalid address %q", collector)
		}
		cfg.Matching.FeeCollector = common.HexToAddress(collector)
	}

	var err error
	if markets := os.Getenv("GENESIS_MARKETS"); markets != "" {
		if cfg.Matching.Genesis, err = ParseGenesisMarkets(markets); err != nil {
			return cfg, fmt.Errorf("GENESIS_MARKETS: %w", err)
		}
	}
	if cfg.Node.ChainID, err = getInt("CHAIN_ID", cfg.Node.ChainID); err != nil {
		return cfg, err
	}
	if cfg.Matching.CrankerReward, err = getBool("CRANKER_REWARD", cfg.Matching.CrankerReward); err != nil {
		return cfg, err
	}
	if cfg.Matching.RewardDivisor, err = getUint("CRANKER_REWARD_DIVISOR", cfg.Matching.RewardDivisor, 64); err != nil {
		return cfg, err
	}
	feeBps, err := getUint("DEFAULT_FEE_BPS", uint64(cfg.Matching.DefaultFeeBps), 16)
	if err != nil {
		return cfg, err
	}
	cfg.Matching.DefaultFeeBps = uint16(feeBps)
	if cfg.TxGen.Enabled, err = getBool("ENABLE_TXGEN", cfg.TxGen.Enabled); err != nil {
		return cfg, err
	}
	cfg.TxGen.Market = getEnv("TXGEN_MARKET", cfg.TxGen.Market)
	if cfg.Faucet.Enabled, err = getBool("FAUCET_ENABLED", cfg.Faucet.Enabled); err != nil {
		return cfg, err
	}
	if cfg.Faucet.BaseAmount, err = getUint("FAUCET_BASE_AMOUNT", cfg.Faucet.BaseAmount, 64); err != nil {
		return cfg, err
	}
	if cfg.Faucet.QuoteAmount, err = getUint("FAUCET_QUOTE_AMOUNT", cfg.Faucet.QuoteAmount, 64); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the matching engine cannot run with
func (c Config) Validate() error {
	if c.Matching.FeeCollector == (common.Address{}) {
		return errors.New("fee collector must be set")
	}
	if c.Matching.DefaultFeeBps > 10000 {
		return fmt.Errorf("default fee %d bps exceeds 10000", c.Matching.DefaultFeeBps)
	}
	if c.Matching.CrankerReward && c.Matching.RewardDivisor == 0 {
		return errors.New("cranker reward divisor must be non-zero")
	}
	switch c.Node.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Node.LogLevel)
	}
	if c.TxGen.Enabled && !c.Faucet.Enabled {
		return errors.New("load generator needs the faucet to fund its traders")
	}
	if c.Node.DataDir == "" {
		return errors.New("data dir must be set")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getUint(key string, defaultValue uint64, bitSize int) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, bitSize)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getInt(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
