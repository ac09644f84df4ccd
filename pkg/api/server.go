package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderbook-dex/pkg/app/core/account"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/engine"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/market"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/orderbook"
	"github.com/uhyunpark/orderbook-dex/pkg/app/core/transaction"
	"github.com/uhyunpark/orderbook-dex/pkg/app/dex"
	"github.com/uhyunpark/orderbook-dex/pkg/crypto"
	"github.com/uhyunpark/orderbook-dex/pkg/metrics"
)

const (
	maxBodyBytes      = 64 << 10
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	shutdownTimeout   = 10 * time.Second
)

// Server handles REST API and WebSocket connections
type Server struct {
	app         *dex.App
	router      *mux.Router
	hub         *Hub
	metrics     *metrics.Metrics
	corsOrigins []string
	logger      *zap.SugaredLogger
}

// NewServer creates a new API server and subscribes the WebSocket hub and
// the metrics to the app's book and trade events. A nil m gets a private
// registry.
func NewServer(app *dex.App, m *metrics.Metrics, corsOrigins []string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		app:         app,
		router:      mux.NewRouter(),
		hub:         NewHub(logger.Named("ws"), m),
		metrics:     m,
		corsOrigins: corsOrigins,
		logger:      logger,
	}

	s.setupRoutes()
	app.OnBookUpdate(s.BroadcastOrderbook)
	app.OnTrade(s.BroadcastTrade)
	app.OnTrade(func(tr *engine.Trade) {
		m.ObserveTrade(tr.Symbol, tr.TotalFee, tr.CrankerReward)
	})
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets/{market}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{market}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{market}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/markets/{market}/match", s.handleMatch).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	// Order submission
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Devnet faucet and signing domain
	api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	api.HandleFunc("/domain", s.handleDomain).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check and Prometheus scrape endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.Use(s.instrument)
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument records every routed request by its path template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
	})
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on addr until ctx is done,
// then drains in-flight requests
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Infow("api_server_stopping", "addr", addr)
		return srv.Shutdown(shutdownCtx)
	}
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub { return s.hub }

// ==============================
// REST Handlers
// ==============================

// resolveMarket accepts a 0x market id or a "BASE-QUOTE" symbol
func (s *Server) resolveMarket(ref string) (*market.Market, error) {
	if strings.HasPrefix(ref, "0x") {
		b, err := hexutil.Decode(ref)
		if err == nil && len(b) == common.HashLength {
			return s.app.GetMarket(common.BytesToHash(b))
		}
	}
	return s.app.GetMarketBySymbol(ref)
}

func (s *Server) marketFromPath(w http.ResponseWriter, r *http.Request) (*market.Market, bool) {
	m, err := s.resolveMarket(mux.Vars(r)["market"])
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return nil, false
	}
	return m, true
}

func addressFromPath(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return common.Address{}, false
	}
	return common.HexToAddress(addressStr), true
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.app.ListMarkets()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = newMarketInfo(m)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, newMarketInfo(m))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketFromPath(w, r)
	if !ok {
		return
	}
	book, err := s.app.Book(m.ID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, newOrderbookSnapshot(m, book, time.Now().UnixMilli()))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketFromPath(w, r)
	if !ok {
		return
	}

	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.app.RecentTrades(m.ID, limit)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	response := make([]TradeInfo, len(trades))
	for i, tr := range trades {
		response[i] = newTradeInfo(m, tr)
	}
	respondJSON(w, response)
}

// assetDecimals maps every listed asset to its decimals
func (s *Server) assetDecimals() map[string]uint8 {
	out := make(map[string]uint8)
	for _, m := range s.app.ListMarkets() {
		out[m.BaseAsset] = m.BaseDecimals
		out[m.QuoteAsset] = m.QuoteDecimals
	}
	return out
}

func (s *Server) balanceInfos(balances map[string]uint64) []BalanceInfo {
	decimals := s.assetDecimals()
	out := make([]BalanceInfo, 0, len(balances))
	for asset, amount := range balances {
		info := BalanceInfo{Asset: asset, Amount: amount}
		if d, ok := decimals[asset]; ok {
			info.Display = formatUnits(amount, d)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, AccountInfo{
		Address:  addr.Hex(),
		Nonce:    s.app.Nonce(addr),
		Balances: s.balanceInfos(s.app.Balances(addr)),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressFromPath(w, r)
	if !ok {
		return
	}
	open := s.app.OpenOrders(addr)
	response := make([]OrderInfo, 0, len(open))
	for _, o := range open {
		m, err := s.app.GetMarket(o.Market)
		if err != nil {
			continue
		}
		response = append(response, newOrderInfo(m, o))
	}
	respondJSON(w, response)
}

// readSignedTx decodes a signed transaction body and checks its type
func readSignedTx(w http.ResponseWriter, r *http.Request, want transaction.TxType) (*transaction.SignedTransaction, bool) {
	bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return nil, false
	}
	tx, err := transaction.ParseTransaction(bodyBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return nil, false
	}
	if tx.Type != want {
		respondError(w, http.StatusBadRequest, "invalid transaction type", "expected type="+string(want))
		return nil, false
	}
	return tx, true
}

func (s *Server) applySigned(w http.ResponseWriter, tx *transaction.SignedTransaction) {
	receipt, err := s.app.ApplySignedTx(tx)
	if err != nil {
		s.metrics.ObserveSignedRequest(string(tx.Type), strconv.Itoa(statusFor(err)))
		s.respondAppError(w, err)
		return
	}
	s.metrics.ObserveSignedRequest(string(tx.Type), "ok")
	s.logger.Infow("signed_tx_accepted", "type", receipt.Type, "signer", receipt.Signer.Hex(), "nonce", receipt.Nonce)
	respondJSON(w, receipt)
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	if tx, ok := readSignedTx(w, r, transaction.TxTypeCreateMarket); ok {
		s.applySigned(w, tx)
	}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	if tx, ok := readSignedTx(w, r, transaction.TxTypeOrder); ok {
		s.applySigned(w, tx)
	}
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if tx, ok := readSignedTx(w, r, transaction.TxTypeCancel); ok {
		s.applySigned(w, tx)
	}
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketFromPath(w, r)
	if !ok {
		return
	}
	tx, ok := readSignedTx(w, r, transaction.TxTypeMatch)
	if !ok {
		return
	}
	if !strings.EqualFold(tx.Match.Market, m.ID.Hex()) {
		respondError(w, http.StatusBadRequest, "market mismatch", "signed market differs from path")
		return
	}
	s.applySigned(w, tx)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	m, err := s.resolveMarket(req.Market)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	addr := common.HexToAddress(req.Address)
	minted, err := s.app.Airdrop(m.ID, addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, FaucetResponse{Address: addr.Hex(), Minted: s.balanceInfos(minted)})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	d := s.app.Verifier().Signer().Domain()
	respondJSON(w, DomainInfo{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID.Int64(),
		VerifyingContract: d.VerifyingContract.Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the app after each commit)
// ==============================

// BroadcastOrderbook broadcasts orderbook update to WebSocket clients
// subscribed by market id or symbol
func (s *Server) BroadcastOrderbook(m *market.Market, book *orderbook.OrderBook) {
	update := OrderbookUpdate{
		Type:              "orderbook",
		OrderbookSnapshot: newOrderbookSnapshot(m, book, time.Now().UnixMilli()),
	}
	s.hub.BroadcastToChannel("orderbook:"+m.ID.Hex(), update)
	s.hub.BroadcastToChannel("orderbook:"+m.Symbol(), update)
}

// BroadcastTrade broadcasts a committed trade to WebSocket clients
func (s *Server) BroadcastTrade(tr *engine.Trade) {
	m, err := s.app.GetMarket(tr.Market)
	if err != nil {
		return
	}
	update := TradeUpdate{Type: "trade", TradeInfo: newTradeInfo(m, tr)}
	s.hub.BroadcastToChannel("trades:"+m.ID.Hex(), update)
	s.hub.BroadcastToChannel("trades:"+m.Symbol(), update)
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps app errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSettlement):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transaction.ErrSignerMismatch), errors.Is(err, crypto.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, dex.ErrFaucetDisabled):
		return http.StatusForbidden
	case errors.Is(err, market.ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrMarketExists),
		errors.Is(err, orderbook.ErrOrderBookFull),
		errors.Is(err, orderbook.ErrOrderIDOverflow):
		return http.StatusConflict
	case errors.Is(err, transaction.ErrInvalidTransaction),
		errors.Is(err, market.ErrInvalidMarket),
		errors.Is(err, engine.ErrInvalidValue),
		errors.Is(err, engine.ErrDustOrder),
		errors.Is(err, engine.ErrMultiplyOverflow),
		errors.Is(err, orderbook.ErrInvalidSide),
		errors.Is(err, account.ErrInsufficientBalance),
		errors.Is(err, account.ErrBalanceOverflow),
		errors.Is(err, account.ErrBadNonce),
		errors.Is(err, account.ErrZeroAddress),
		errors.Is(err, dex.ErrFaucetOverflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request_failed", "err", err)
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
