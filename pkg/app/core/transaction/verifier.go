package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
)

var ErrSignerMismatch = errors.New("signature does not match claimed signer")

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

// NewVerifier creates a new transaction verifier
func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Signer returns the typed-data signer for the verifier's domain
func (v *Verifier) Signer() *crypto.EIP712Signer { return v.eip712Signer }

// Verify checks the signature of tx and returns the decoded request along
// with the identity that signed it. A signature that recovers to anyone
// other than the claimed owner/cranker/creator is rejected.
func (v *Verifier) Verify(tx *SignedTransaction) (crypto.TypedMessage, common.Address, error) {
	if err := tx.Validate(); err != nil {
		return nil, common.Address{}, err
	}
	msg, err := tx.Message()
	if err != nil {
		return nil, common.Address{}, err
	}

	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %w", crypto.ErrInvalidSignature, err)
	}

	recovered, err := v.eip712Signer.Recover(msg, sigBytes)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if recovered != msg.SignedBy() {
		return nil, common.Address{}, fmt.Errorf("%w: recovered %s, claimed %s",
			ErrSignerMismatch, recovered.Hex(), msg.SignedBy().Hex())
	}
	return msg, recovered, nil
}

// decodeSignature decodes a 0x-prefixed hex signature
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	return sigBytes, nil
}
