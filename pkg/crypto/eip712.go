package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/deployments
type EIP712Domain struct {
	Name              string         // Protocol name
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local)
	VerifyingContract common.Address // Zero for off-chain signing
}

// DefaultDomain returns the EIP-712 domain for the given chain id
func DefaultDomain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:              "OrderbookDEX",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.Address{},
	}
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedMessage is a request that can be signed as EIP-712 typed data
type TypedMessage interface {
	PrimaryType() string
	Fields() []apitypes.Type
	Message() apitypes.TypedDataMessage
	// SignedBy is the identity the signature must recover to
	SignedBy() common.Address
}

// PlaceOrderEIP712 is a limit order placement
type PlaceOrderEIP712 struct {
	Market common.Hash    // Market id
	Side   uint8          // 1 = bid, 2 = ask
	Price  *big.Int       // Quote units per whole base unit
	Amount *big.Int       // Base minor units
	Nonce  *big.Int       // Replay protection
	Owner  common.Address // Order owner
}

func (o *PlaceOrderEIP712) PrimaryType() string { return "PlaceOrder" }

func (o *PlaceOrderEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "market", Type: "bytes32"},
		{Name: "side", Type: "uint8"},
		{Name: "price", Type: "uint64"},
		{Name: "amount", Type: "uint64"},
		{Name: "nonce", Type: "uint64"},
		{Name: "owner", Type: "address"},
	}
}

func (o *PlaceOrderEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"market": o.Market.Hex(),
		"side":   fmt.Sprintf("%d", o.Side),
		"price":  o.Price.String(),
		"amount": o.Amount.String(),
		"nonce":  o.Nonce.String(),
		"owner":  o.Owner.Hex(),
	}
}

func (o *PlaceOrderEIP712) SignedBy() common.Address { return o.Owner }

// CancelOrderEIP712 cancels a resting order
type CancelOrderEIP712 struct {
	Market  common.Hash
	Side    uint8
	OrderID *big.Int
	Nonce   *big.Int
	Owner   common.Address
}

func (c *CancelOrderEIP712) PrimaryType() string { return "CancelOrder" }

func (c *CancelOrderEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "market", Type: "bytes32"},
		{Name: "side", Type: "uint8"},
		{Name: "orderId", Type: "uint64"},
		{Name: "nonce", Type: "uint64"},
		{Name: "owner", Type: "address"},
	}
}

func (c *CancelOrderEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"market":  c.Market.Hex(),
		"side":    fmt.Sprintf("%d", c.Side),
		"orderId": c.OrderID.String(),
		"nonce":   c.Nonce.String(),
		"owner":   c.Owner.Hex(),
	}
}

func (c *CancelOrderEIP712) SignedBy() common.Address { return c.Owner }

// MatchOrdersEIP712 triggers a matching pass; the cranker collects the reward
type MatchOrdersEIP712 struct {
	Market  common.Hash
	Nonce   *big.Int
	Cranker common.Address
}

func (m *MatchOrdersEIP712) PrimaryType() string { return "MatchOrders" }

func (m *MatchOrdersEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "market", Type: "bytes32"},
		{Name: "nonce", Type: "uint64"},
		{Name: "cranker", Type: "address"},
	}
}

func (m *MatchOrdersEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"market":  m.Market.Hex(),
		"nonce":   m.Nonce.String(),
		"cranker": m.Cranker.Hex(),
	}
}

func (m *MatchOrdersEIP712) SignedBy() common.Address { return m.Cranker }

// CreateMarketEIP712 creates a trading pair
type CreateMarketEIP712 struct {
	BaseAsset     string
	QuoteAsset    string
	BaseDecimals  uint8
	QuoteDecimals uint8
	FeeBps        uint16
	Nonce         *big.Int
	Creator       common.Address
}

func (c *CreateMarketEIP712) PrimaryType() string { return "CreateMarket" }

func (c *CreateMarketEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "baseAsset", Type: "string"},
		{Name: "quoteAsset", Type: "string"},
		{Name: "baseDecimals", Type: "uint8"},
		{Name: "quoteDecimals", Type: "uint8"},
		{Name: "feeBps", Type: "uint16"},
		{Name: "nonce", Type: "uint64"},
		{Name: "creator", Type: "address"},
	}
}

func (c *CreateMarketEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"baseAsset":     c.BaseAsset,
		"quoteAsset":    c.QuoteAsset,
		"baseDecimals":  fmt.Sprintf("%d", c.BaseDecimals),
		"quoteDecimals": fmt.Sprintf("%d", c.QuoteDecimals),
		"feeBps":        fmt.Sprintf("%d", c.FeeBps),
		"nonce":         c.Nonce.String(),
		"creator":       c.Creator.Hex(),
	}
}

func (c *CreateMarketEIP712) SignedBy() common.Address { return c.Creator }

// EIP712Signer handles EIP-712 typed data hashing, signing and verification
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a new EIP-712 signer with given domain
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// Domain returns the signing domain
func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

// TypedData builds the full typed data document for msg
func (e *EIP712Signer) TypedData(msg TypedMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":    domainFields,
			msg.PrimaryType(): msg.Fields(),
		},
		PrimaryType: msg.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg.Message(),
	}
}

// Hash returns the digest that should be signed for msg
func (e *EIP712Signer) Hash(msg TypedMessage) ([]byte, error) {
	typedData := e.TypedData(msg)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", typedData.PrimaryType, err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// Sign signs msg with signer
func (e *EIP712Signer) Sign(signer *Signer, msg TypedMessage) ([]byte, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", msg.PrimaryType(), err)
	}
	return signature, nil
}

// Recover returns the address that signed msg
func (e *EIP712Signer) Recover(msg TypedMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// Verify reports whether signature over msg was made by msg.SignedBy()
func (e *EIP712Signer) Verify(msg TypedMessage, signature []byte) (bool, error) {
	recovered, err := e.Recover(msg, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == msg.SignedBy(), nil
}

// ToJSON renders msg as the document wallets accept for eth_signTypedData_v4
func (e *EIP712Signer) ToJSON(msg TypedMessage) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.TypedData(msg), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
