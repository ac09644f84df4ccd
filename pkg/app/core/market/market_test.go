package market

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var creator = common.HexToAddress("0xCC00000000000000000000000000000000000000")

func TestNewMarketDerivesAccounts(t *testing.T) {
	m, err := NewMarket(Params{
		BaseAsset:     "SOL",
		QuoteAsset:    "USDC",
		BaseDecimals:  9,
		QuoteDecimals: 6,
		FeeBps:        30,
		Creator:       creator,
	})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}

	if m.ID != DeriveID("SOL", "USDC") {
		t.Error("id not derived from pair")
	}
	if m.BaseCustody == m.QuoteCustody {
		t.Error("base and quote custody must differ")
	}
	if m.Authority() == m.BaseCustody || m.Authority() == (common.Address{}) {
		t.Error("authority must be a distinct non-zero identity")
	}
	if m.Symbol() != "SOL-USDC" {
		t.Errorf("symbol = %s", m.Symbol())
	}
	if m.BaseScale() != 1_000_000_000 {
		t.Errorf("base scale = %d", m.BaseScale())
	}
	if m.QuoteScale() != 1_000_000 {
		t.Errorf("quote scale = %d", m.QuoteScale())
	}
}

func TestDeriveIDIsUnambiguous(t *testing.T) {
	if DeriveID("AB", "C") == DeriveID("A", "BC") {
		t.Error("distinct pairs collided")
	}
	if DeriveID("SOL", "USDC") == DeriveID("USDC", "SOL") {
		t.Error("reversed pair collided")
	}
	want := crypto.Keccak256Hash([]byte("market"), []byte("SOL"), []byte{0}, []byte("USDC"))
	if got := DeriveID("SOL", "USDC"); got != want {
		t.Errorf("DeriveID = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestMarketValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"empty base", Params{QuoteAsset: "USDC", Creator: creator}},
		{"same assets", Params{BaseAsset: "USDC", QuoteAsset: "USDC", Creator: creator}},
		{"fee too high", Params{BaseAsset: "SOL", QuoteAsset: "USDC", FeeBps: 10001, Creator: creator}},
		{"too many decimals", Params{BaseAsset: "SOL", QuoteAsset: "USDC", BaseDecimals: 20, Creator: creator}},
		{"no creator", Params{BaseAsset: "SOL", QuoteAsset: "USDC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMarket(tt.params); !errors.Is(err, ErrInvalidMarket) {
				t.Errorf("err = %v, want ErrInvalidMarket", err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewMarketRegistry()
	m, _ := NewMarket(Params{BaseAsset: "SOL", QuoteAsset: "USDC", Creator: creator})
	n, _ := NewMarket(Params{BaseAsset: "ETH", QuoteAsset: "USDC", Creator: creator})

	if err := reg.RegisterMarket(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterMarket(m); !errors.Is(err, ErrMarketExists) {
		t.Errorf("duplicate register err = %v", err)
	}
	reg.RegisterMarket(n)

	if _, err := reg.GetMarket(common.Hash{}); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("unknown market err = %v", err)
	}
	got, err := reg.GetBySymbol("SOL-USDC")
	if err != nil || got != m {
		t.Errorf("by symbol = %v, %v", got, err)
	}

	list := reg.ListMarkets()
	if len(list) != 2 || list[0].Symbol() != "ETH-USDC" {
		t.Errorf("list = %v", list)
	}
	if reg.Count() != 2 || !reg.Exists(m.ID) {
		t.Error("count/exists mismatch")
	}
}
