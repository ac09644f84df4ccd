package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// TxType represents the type of transaction
type TxType string

const (
	TxTypeOrder        TxType = "order"         // Place limit order
	TxTypeCancel       TxType = "cancel"        // Cancel resting order
	TxTypeMatch        TxType = "match"         // Crank a matching pass
	TxTypeCreateMarket TxType = "create_market" // Create a trading pair
)

// SignedTransaction is the JSON envelope of a signed request. Exactly one
// payload matching Type is set.
type SignedTransaction struct {
	Type         TxType               `json:"type"`
	Order        *OrderPayload        `json:"order,omitempty"`
	Cancel       *CancelPayload       `json:"cancel,omitempty"`
	Match        *MatchPayload        `json:"match,omitempty"`
	CreateMarket *CreateMarketPayload `json:"create_market,omitempty"`
	Signature    string               `json:"signature"` // Hex-encoded signature (0x...)
}

// OrderPayload contains order data for EIP-712 signing
type OrderPayload struct {
	Market string `json:"market"` // Market id (0x + 64 hex)
	Side   uint8  `json:"side"`   // 1=Bid, 2=Ask
	Price  string `json:"price"`  // Decimal string
	Amount string `json:"amount"` // Decimal string, base minor units
	Nonce  string `json:"nonce"`  // Decimal string
	Owner  string `json:"owner"`  // Ethereum address (0x...)
}

// CancelPayload contains order cancellation data
type CancelPayload struct {
	Market  string `json:"market"`
	Side    uint8  `json:"side"`
	OrderID string `json:"order_id"`
	Nonce   string `json:"nonce"`
	Owner   string `json:"owner"`
}

// MatchPayload asks for a matching pass on a market
type MatchPayload struct {
	Market  string `json:"market"`
	Nonce   string `json:"nonce"`
	Cranker string `json:"cranker"`
}

// CreateMarketPayload contains the parameters of a new market
type CreateMarketPayload struct {
	BaseAsset     string `json:"base_asset"`
	QuoteAsset    string `json:"quote_asset"`
	BaseDecimals  uint8  `json:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	FeeBps        uint16 `json:"fee_bps"`
	Nonce         string `json:"nonce"`
	Creator       string `json:"creator"`
}

// parseUint parses a decimal string that must fit an unsigned 64-bit value
func parseUint(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || !v.IsUint64() {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidTransaction, field, s)
	}
	return v, nil
}

func parseMarket(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: market %q", ErrInvalidTransaction, s)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q", ErrInvalidTransaction, field, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero %s", ErrInvalidTransaction, field)
	}
	return addr, nil
}

// ToEIP712 converts OrderPayload to the typed message that was signed
func (o *OrderPayload) ToEIP712() (*crypto.PlaceOrderEIP712, error) {
	mkt, err := parseMarket(o.Market)
	if err != nil {
		return nil, err
	}
	price, err := parseUint("price", o.Price)
	if err != nil {
		return nil, err
	}
	amount, err := parseUint("amount", o.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint("nonce", o.Nonce)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", o.Owner)
	if err != nil {
		return nil, err
	}
	return &crypto.PlaceOrderEIP712{
		Market: mkt,
		Side:   o.Side,
		Price:  price,
		Amount: amount,
		Nonce:  nonce,
		Owner:  owner,
	}, nil
}

// FromEIP712Order converts a typed order to its payload
func FromEIP712Order(o *crypto.PlaceOrderEIP712) *OrderPayload {
	return &OrderPayload{
		Market: o.Market.Hex(),
		Side:   o.Side,
		Price:  o.Price.String(),
		Amount: o.Amount.String(),
		Nonce:  o.Nonce.String(),
		Owner:  o.Owner.Hex(),
	}
}

// ToEIP712 converts CancelPayload to the typed message that was signed
func (c *CancelPayload) ToEIP712() (*crypto.CancelOrderEIP712, error) {
	mkt, err := parseMarket(c.Market)
	if err != nil {
		return nil, err
	}
	orderID, err := parseUint("order_id", c.OrderID)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint("nonce", c.Nonce)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", c.Owner)
	if err != nil {
		return nil, err
	}
	return &crypto.CancelOrderEIP712{Market: mkt, Side: c.Side, OrderID: orderID, Nonce: nonce, Owner: owner}, nil
}

// FromEIP712Cancel converts a typed cancel to its payload
func FromEIP712Cancel(c *crypto.CancelOrderEIP712) *CancelPayload {
	return &CancelPayload{
		Market:  c.Market.Hex(),
		Side:    c.Side,
		OrderID: c.OrderID.String(),
		Nonce:   c.Nonce.String(),
		Owner:   c.Owner.Hex(),
	}
}

// ToEIP712 converts MatchPayload to the typed message that was signed
func (m *MatchPayload) ToEIP712() (*crypto.MatchOrdersEIP712, error) {
	mkt, err := parseMarket(m.Market)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint("nonce", m.Nonce)
	if err != nil {
		return nil, err
	}
	cranker, err := parseAddress("cranker", m.Cranker)
	if err != nil {
		return nil, err
	}
	return &crypto.MatchOrdersEIP712{Market: mkt, Nonce: nonce, Cranker: cranker}, nil
}

// FromEIP712Match converts a typed match request to its payload
func FromEIP712Match(m *crypto.MatchOrdersEIP712) *MatchPayload {
	return &MatchPayload{Market: m.Market.Hex(), Nonce: m.Nonce.String(), Cranker: m.Cranker.Hex()}
}

// ToEIP712 converts CreateMarketPayload to the typed message that was signed
func (c *CreateMarketPayload) ToEIP712() (*crypto.CreateMarketEIP712, error) {
	nonce, err := parseUint("nonce", c.Nonce)
	if err != nil {
		return nil, err
	}
	creator, err := parseAddress("creator", c.Creator)
	if err != nil {
		return nil, err
	}
	return &crypto.CreateMarketEIP712{
		BaseAsset:     c.BaseAsset,
		QuoteAsset:    c.QuoteAsset,
		BaseDecimals:  c.BaseDecimals,
		QuoteDecimals: c.QuoteDecimals,
		FeeBps:        c.FeeBps,
		Nonce:         nonce,
		Creator:       creator,
	}, nil
}

// FromEIP712CreateMarket converts a typed market creation to its payload
func FromEIP712CreateMarket(c *crypto.CreateMarketEIP712) *CreateMarketPayload {
	return &CreateMarketPayload{
		BaseAsset:     c.BaseAsset,
		QuoteAsset:    c.QuoteAsset,
		BaseDecimals:  c.BaseDecimals,
		QuoteDecimals: c.QuoteDecimals,
		FeeBps:        c.FeeBps,
		Nonce:         c.Nonce.String(),
		Creator:       c.Creator.Hex(),
	}
}

// Wrap builds the unsigned envelope carrying msg
func Wrap(msg crypto.TypedMessage) (*SignedTransaction, error) {
	switch m := msg.(type) {
	case *crypto.PlaceOrderEIP712:
		return &SignedTransaction{Type: TxTypeOrder, Order: FromEIP712Order(m)}, nil
	case *crypto.CancelOrderEIP712:
		return &SignedTransaction{Type: TxTypeCancel, Cancel: FromEIP712Cancel(m)}, nil
	case *crypto.MatchOrdersEIP712:
		return &SignedTransaction{Type: TxTypeMatch, Match: FromEIP712Match(m)}, nil
	case *crypto.CreateMarketEIP712:
		return &SignedTransaction{Type: TxTypeCreateMarket, CreateMarket: FromEIP712CreateMarket(m)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrInvalidTransaction, msg)
	}
}

// Message decodes the typed message carried by the envelope
func (tx *SignedTransaction) Message() (crypto.TypedMessage, error) {
	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return nil, fmt.Errorf("%w: order type requires order payload", ErrInvalidTransaction)
		}
		return tx.Order.ToEIP712()
	case TxTypeCancel:
		if tx.Cancel == nil {
			return nil, fmt.Errorf("%w: cancel type requires cancel payload", ErrInvalidTransaction)
		}
		return tx.Cancel.ToEIP712()
	case TxTypeMatch:
		if tx.Match == nil {
			return nil, fmt.Errorf("%w: match type requires match payload", ErrInvalidTransaction)
		}
		return tx.Match.ToEIP712()
	case TxTypeCreateMarket:
		if tx.CreateMarket == nil {
			return nil, fmt.Errorf("%w: create_market type requires create_market payload", ErrInvalidTransaction)
		}
		return tx.CreateMarket.ToEIP712()
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransaction, tx.Type)
	}
}

// Nonce returns the replay-protection nonce of the carried request
func (tx *SignedTransaction) Nonce() (uint64, error) {
	var raw string
	switch tx.Type {
	case TxTypeOrder:
		if tx.Order != nil {
			raw = tx.Order.Nonce
		}
	case TxTypeCancel:
		if tx.Cancel != nil {
			raw = tx.Cancel.Nonce
		}
	case TxTypeMatch:
		if tx.Match != nil {
			raw = tx.Match.Nonce
		}
	case TxTypeCreateMarket:
		if tx.CreateMarket != nil {
			raw = tx.CreateMarket.Nonce
		}
	}
	n, err := parseUint("nonce", raw)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// Sign fills in the signature for the carried request
func (tx *SignedTransaction) Sign(e *crypto.EIP712Signer, key *crypto.Signer) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	sig, err := e.Sign(key, msg)
	if err != nil {
		return err
	}
	tx.Signature = hexutil.Encode(sig)
	return nil
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate performs structural validation: a signature is present and the
// payload matching Type decodes
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("%w: missing transaction type", ErrInvalidTransaction)
	}
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidTransaction)
	}
	_, err := tx.Message()
	return err
}

// ParseTransaction decodes and validates a JSON envelope
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// Example:
//   {
//     "type": "order",
//     "order": {
//       "market": "0x5f1c...",
//       "side": 1,
//       "price": "100",
//       "amount": "5",
//       "nonce": "42",
//       "owner": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
//     },
//     "signature": "0x1234567890abcdef..."
//   }
