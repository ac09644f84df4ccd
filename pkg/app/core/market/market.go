package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxFeeBps caps the trading fee at 100%.
const MaxFeeBps = 10000

// MaxDecimals is the largest decimals value whose scale 10^d fits in a uint64.
const MaxDecimals = 19

var (
	ErrMarketExists   = errors.New("market already exists")
	ErrMarketNotFound = errors.New("market not found")
	ErrInvalidMarket  = errors.New("invalid market")
)

// Market is the configuration of one trading pair. It is created once
// together with its order book and never changes afterwards.
type Market struct {
	ID            common.Hash    `json:"id"`
	BaseAsset     string         `json:"baseAsset"`
	QuoteAsset    string         `json:"quoteAsset"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
	BaseCustody   common.Address `json:"baseCustody"`
	QuoteCustody  common.Address `json:"quoteCustody"`
	FeeBps        uint16         `json:"feeBps"`
	Creator       common.Address `json:"creator"`
	CreatedAt     int64          `json:"createdAt"` // unix ms
}

// Params is the user-supplied part of a market.
type Params struct {
	BaseAsset     string
	QuoteAsset    string
	BaseDecimals  uint8
	QuoteDecimals uint8
	FeeBps        uint16
	Creator       common.Address
}

// DeriveID returns the pair identity keccak256("market" || base || 0x00 || quote).
// The same pair always maps to the same id, which is how duplicate markets
// are detected.
func DeriveID(baseAsset, quoteAsset string) common.Hash {
	return crypto.Keccak256Hash([]byte("market"), []byte(baseAsset), []byte{0}, []byte(quoteAsset))
}

// AuthorityOf returns the identity that authorizes transfers out of the
// market's custody accounts.
func AuthorityOf(id common.Hash) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("authority"), id.Bytes()))
}

// CustodyOf returns the custody account holding asset for the market.
func CustodyOf(id common.Hash, asset string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("custody"), id.Bytes(), []byte(asset)))
}

// NewMarket validates params and derives the id and custody accounts.
func NewMarket(p Params) (*Market, error) {
	id := DeriveID(p.BaseAsset, p.QuoteAsset)
	m := &Market{
		ID:            id,
		BaseAsset:     p.BaseAsset,
		QuoteAsset:    p.QuoteAsset,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
		BaseCustody:   CustodyOf(id, p.BaseAsset),
		QuoteCustody:  CustodyOf(id, p.QuoteAsset),
		FeeBps:        p.FeeBps,
		Creator:       p.Creator,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks market parameter sanity
func (m *Market) Validate() error {
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("%w: base and quote assets must be specified", ErrInvalidMarket)
	}
	if m.BaseAsset == m.QuoteAsset {
		return fmt.Errorf("%w: base and quote assets must differ", ErrInvalidMarket)
	}
	if m.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: fee %d bps exceeds %d", ErrInvalidMarket, m.FeeBps, MaxFeeBps)
	}
	if m.BaseDecimals > MaxDecimals || m.QuoteDecimals > MaxDecimals {
		return fmt.Errorf("%w: decimals must be at most %d", ErrInvalidMarket, MaxDecimals)
	}
	if m.Creator == (common.Address{}) {
		return fmt.Errorf("%w: creator must be set", ErrInvalidMarket)
	}
	if m.ID != DeriveID(m.BaseAsset, m.QuoteAsset) {
		return fmt.Errorf("%w: market id does not match pair %s", ErrInvalidMarket, m.Symbol())
	}
	return nil
}

// Symbol returns the display name, e.g. "SOL-USDC".
func (m *Market) Symbol() string {
	return m.BaseAsset + "-" + m.QuoteAsset
}

// Authority returns the custody authority of this market.
func (m *Market) Authority() common.Address {
	return AuthorityOf(m.ID)
}

// BaseScale returns 10^BaseDecimals, the number of base minor units in one
// whole base unit.
func (m *Market) BaseScale() uint64 { return pow10(m.BaseDecimals) }

// QuoteScale returns 10^QuoteDecimals.
func (m *Market) QuoteScale() uint64 { return pow10(m.QuoteDecimals) }

func pow10(d uint8) uint64 {
	scale := uint64(1)
	for i := uint8(0); i < d; i++ {
		scale *= 10
	}
	return scale
}
