package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/transaction"
	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
)

// sign-order prints a signed request as JSON on stdout, ready to POST:
//
//	sign-order -type order -market SOL-USDC -side bid -price 100 -amount 5 -nonce 1 | \
//	  curl -d @- localhost:8080/api/v1/orders
//
// Key material and diagnostics go to stderr.
func main() {
	var (
		txType  = flag.String("type", "order", "request type: order, cancel, match, create_market")
		keyHex  = flag.String("key", "", "hex private key (generated when empty)")
		symbol  = flag.String("market", "SOL-USDC", "market symbol BASE-QUOTE")
		side    = flag.String("side", "bid", "order side: bid or ask")
		price   = flag.Uint64("price", 0, "limit price in quote minor units per whole base unit")
		amount  = flag.Uint64("amount", 0, "amount in base minor units")
		orderID = flag.Uint64("order-id", 0, "order to cancel")
		nonce   = flag.Uint64("nonce", 1, "request nonce, must exceed the last one used")
		chainID = flag.Int64("chain-id", 1337, "EIP-712 domain chain id")
		baseDec = flag.Uint("base-decimals", 9, "create_market: base asset decimals")
		quoteDc = flag.Uint("quote-decimals", 6, "create_market: quote asset decimals")
		feeBps  = flag.Uint("fee-bps", 30, "create_market: fee in basis points")
	)
	flag.Parse()

	if err := run(*txType, *keyHex, *symbol, *side, *price, *amount, *orderID, *nonce, *chainID,
		uint8(*baseDec), uint8(*quoteDc), uint16(*feeBps)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(txType, keyHex, symbol, sideStr string, price, amount, orderID, nonce uint64, chainID int64,
	baseDec, quoteDec uint8, feeBps uint16) error {
	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if keyHex == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(keyHex)
	}
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	owner := signer.Address()
	fmt.Fprintf(os.Stderr, "Address: %s\n", owner.Hex())

	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return err
	}
	id := market.DeriveID(base, quote)
	n := new(big.Int).SetUint64(nonce)

	// Step 2: Build the typed message
	var msg crypto.TypedMessage
	switch transaction.TxType(txType) {
	case transaction.TxTypeOrder:
		s, err := orderbook.ParseSide(sideStr)
		if err != nil {
			return err
		}
		msg = &crypto.PlaceOrderEIP712{
			Market: id, Side: uint8(s),
			Price: new(big.Int).SetUint64(price), Amount: new(big.Int).SetUint64(amount),
			Nonce: n, Owner: owner,
		}
	case transaction.TxTypeCancel:
		s, err := orderbook.ParseSide(sideStr)
		if err != nil {
			return err
		}
		msg = &crypto.CancelOrderEIP712{
			Market: id, Side: uint8(s), OrderID: new(big.Int).SetUint64(orderID), Nonce: n, Owner: owner,
		}
	case transaction.TxTypeMatch:
		msg = &crypto.MatchOrdersEIP712{Market: id, Nonce: n, Cranker: owner}
	case transaction.TxTypeCreateMarket:
		msg = &crypto.CreateMarketEIP712{
			BaseAsset: base, QuoteAsset: quote, BaseDecimals: baseDec, QuoteDecimals: quoteDec,
			FeeBps: feeBps, Nonce: n, Creator: owner,
		}
	default:
		return fmt.Errorf("unknown request type %q", txType)
	}

	// Step 3: Sign with EIP-712 and wrap into a signed transaction
	domain := crypto.DefaultDomain(chainID)
	tx, err := transaction.Wrap(msg)
	if err != nil {
		return err
	}
	eip712Signer := crypto.NewEIP712Signer(domain)
	if err := tx.Sign(eip712Signer, signer); err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	// Step 4: Verify before printing
	_, recovered, err := transaction.NewVerifier(domain).Verify(tx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Verified signer: %s\n", recovered.Hex())

	// Step 5: Serialize to JSON
	txJSON, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	fmt.Println(string(txJSON))
	return nil
}

func splitSymbol(symbol string) (string, string, error) {
	base, quote, ok := strings.Cut(symbol, "-")
	if ok && base != "" && quote != "" {
		return base, quote, nil
	}
	return "", "", fmt.Errorf("market %q: want BASE-QUOTE", symbol)
}
