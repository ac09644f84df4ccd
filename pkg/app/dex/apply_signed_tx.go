package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/account"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/transaction"
	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
)

// Receipt describes the outcome of a signed request. Only the field
// matching Type is set.
type Receipt struct {
	Type   transaction.TxType    `json:"type"`
	Signer common.Address        `json:"signer"`
	Nonce  uint64                `json:"nonce"`
	Order  *orderbook.LimitOrder `json:"order,omitempty"`
	Cancel *engine.CancelResult  `json:"cancel,omitempty"`
	Match  *engine.MatchResult   `json:"match,omitempty"`
	Trades []*engine.Trade       `json:"trades,omitempty"`
	Market *market.Market        `json:"market,omitempty"`
}

// ApplySignedTx verifies stx and executes the carried request as its
// signer. The request's nonce is consumed in the same ledger transaction
// as the request itself, so a rejected request leaves the nonce unused and
// a replayed one is refused.
func (a *App) ApplySignedTx(stx *transaction.SignedTransaction) (*Receipt, error) {
	msg, signer, err := a.verifier.Verify(stx)
	if err != nil {
		a.logger.Warnw("signed_tx_rejected", "type", stx.Type, "err", err)
		return nil, err
	}
	nonce, err := stx.Nonce()
	if err != nil {
		return nil, err
	}
	auth := func(tx *account.Tx) error { return tx.UseNonce(signer, nonce) }

	r := &Receipt{Type: stx.Type, Signer: signer, Nonce: nonce}
	switch m := msg.(type) {
	case *crypto.PlaceOrderEIP712:
		order, err := a.placeOrder(m.Market, engine.PlaceRequest{
			Owner:  signer,
			Side:   orderbook.Side(m.Side),
			Price:  m.Price.Uint64(),
			Amount: m.Amount.Uint64(),
		}, auth)
		if err != nil {
			return nil, err
		}
		r.Order = &order

	case *crypto.CancelOrderEIP712:
		res, err := a.cancelOrder(m.Market, signer, orderbook.Side(m.Side), m.OrderID.Uint64(), auth)
		if err != nil {
			return nil, err
		}
		r.Cancel = &res

	case *crypto.MatchOrdersEIP712:
		res, trades, err := a.matchOrders(m.Market, signer, auth)
		if err != nil {
			return nil, err
		}
		r.Match, r.Trades = res, trades

	case *crypto.CreateMarketEIP712:
		mkt, err := a.createMarket(market.Params{
			BaseAsset:     m.BaseAsset,
			QuoteAsset:    m.QuoteAsset,
			BaseDecimals:  m.BaseDecimals,
			QuoteDecimals: m.QuoteDecimals,
			FeeBps:        m.FeeBps,
			Creator:       signer,
		}, auth)
		if err != nil {
			return nil, err
		}
		r.Market = mkt

	default:
		return nil, fmt.Errorf("%w: unsupported message %T", transaction.ErrInvalidTransaction, msg)
	}

	a.logger.Debugw("signed_tx_applied", "type", stx.Type, "signer", signer.Hex(), "nonce", nonce)
	return r, nil
}
