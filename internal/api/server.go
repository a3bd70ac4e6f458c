// Package api provides the thin HTTP/WebSocket boundary over the core
// wallet-tracking and paper-trading engine: it reads from the Store,
// triggers Supervisor-driven work on demand, and surfaces provider health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainscout/walletrader/internal/store"
	"github.com/chainscout/walletrader/pkg/types"
)

// Store is the slice of internal/store.Store the boundary API reads and
// writes, narrowed to exactly what the fixed endpoint contract needs.
type Store interface {
	Wallets(ctx context.Context) ([]*types.Wallet, error)
	GetWallet(ctx context.Context, address string, chain types.Chain) (*types.Wallet, error)
	SetWalletStatus(ctx context.Context, address string, chain types.Chain, status types.WalletStatus) error
	RecentTransfersByWallet(ctx context.Context, address string, chain types.Chain, limit int) ([]*types.Transfer, error)
	WalletActivitySince(ctx context.Context, since time.Time) ([]*types.WalletActivitySummary, error)
	TradesFiltered(ctx context.Context, status *types.TradeStatus, strategy *string) ([]*types.PaperTrade, error)
	OpenTrades(ctx context.Context) ([]*types.PaperTrade, error)
	DiscoveredWallets(ctx context.Context, promoted *bool) ([]*types.DiscoveredWallet, error)
	PromoteDiscoveredWallet(ctx context.Context, address string, chain types.Chain) error
	AvailableCapital(ctx context.Context, startingCapital decimal.Decimal) (decimal.Decimal, error)
}

// Supervisor is the slice of internal/supervisor.Supervisor the boundary
// API can trigger on demand.
type Supervisor interface {
	TriggerIngestTick(ctx context.Context)
	TriggerDiscovery(ctx context.Context) (int, error)
}

// StatusMonitor is the slice of internal/apistatus.Monitor the boundary
// API reads for /api/system/status and /api/connections/status.
type StatusMonitor interface {
	All() []types.ProviderStatus
}

// Config is the subset of internal/config.Config the API server needs.
type Config struct {
	Addr            string
	APIKey          string
	CORSOrigin      string
	TotalCapital    decimal.Decimal
	MockMode        bool
	RateLimitWindow time.Duration
	RateLimitMax    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Server is the HTTP/WebSocket API server, C-boundary over the core.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	store      Store
	supervisor Supervisor
	monitor    StatusMonitor
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	startedAt  time.Time

	generalLimiter   *rateLimiter
	mutatingLimiter  *rateLimiter
	discoveryLimiter *rateLimiter
}

// NewServer wires a Server against its collaborators and builds the route
// table from the fixed endpoint contract.
func NewServer(logger *zap.Logger, cfg Config, st Store, sv Supervisor, monitor StatusMonitor, hub *Hub) *Server {
	window := cfg.RateLimitWindow
	max := cfg.RateLimitMax
	if window <= 0 {
		window = 15 * time.Minute
	}
	if max <= 0 {
		max = 100
	}

	s := &Server{
		logger:     logger.Named("api"),
		cfg:        cfg,
		store:      st,
		supervisor: sv,
		monitor:    monitor,
		router:     mux.NewRouter(),
		hub:        hub,
		startedAt:  time.Now(),

		generalLimiter:   newRateLimiter(window, max),
		mutatingLimiter:  newRateLimiter(15*time.Minute, 10),
		discoveryLimiter: newRateLimiter(time.Hour, 5),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)

	s.router.HandleFunc("/api/wallets", s.handleListWallets).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallets/activity", s.handleWalletActivity).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallets/{address}", s.handleGetWallet).Methods(http.MethodGet)
	s.router.Handle("/api/wallets/{address}/status", s.rateLimited("mutating", s.mutating(s.handleSetWalletStatus))).Methods(http.MethodPost)

	s.router.HandleFunc("/api/trades", s.handleListTrades).Methods(http.MethodGet)

	s.router.HandleFunc("/api/discovered", s.handleListDiscovered).Methods(http.MethodGet)
	s.router.Handle("/api/discovered/{address}/promote", s.rateLimited("mutating", s.mutating(s.handlePromoteDiscovered))).Methods(http.MethodPost)
	s.router.Handle("/api/discover", s.rateLimited("discover", s.mutating(s.handleDiscover))).Methods(http.MethodPost)

	s.router.Handle("/api/track", s.rateLimited("mutating", s.mutating(s.handleTrack))).Methods(http.MethodPost)

	s.router.HandleFunc("/api/system/status", s.handleSystemStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/connections/status", s.handleConnectionsStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Router exposes the underlying mux.Router directly, for tests that want
// to exercise routing and handlers without the CORS/listener wrapping that
// Start applies.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server, applying CORS and the general rate limit to
// every request and blocking until the listener stops.
func (s *Server) Start() error {
	handler := s.withGeneralRateLimit(s.router)
	handler = cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting api server", zap.String("addr", s.cfg.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"initialized": true,
		"mock_mode":   s.cfg.MockMode,
	})
}

// handleDashboard aggregates open-position PnL, available capital and a
// per-strategy breakdown of closed trades for the operator dashboard.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	open, err := s.store.OpenTrades(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	closedStatus := types.TradeStatusClosed
	closed, err := s.store.TradesFiltered(ctx, &closedStatus, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	available, err := s.store.AvailableCapital(ctx, s.cfg.TotalCapital)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	breakdown := map[string]*strategyBreakdown{}
	for _, t := range closed {
		b, ok := breakdown[t.StrategyUsed]
		if !ok {
			b = &strategyBreakdown{Strategy: t.StrategyUsed}
			breakdown[t.StrategyUsed] = b
		}
		b.TradesClosed++
		if t.PnL != nil {
			b.RealizedPnLUSD = b.RealizedPnLUSD.Add(*t.PnL)
			if t.PnL.IsPositive() {
				b.WinningTrades++
			}
		}
	}
	strategies := make([]*strategyBreakdown, 0, len(breakdown))
	for _, b := range breakdown {
		if b.TradesClosed > 0 {
			b.WinRate = decimal.NewFromInt(int64(b.WinningTrades)).DivRound(decimal.NewFromInt(int64(b.TradesClosed)), 4)
		}
		strategies = append(strategies, b)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"availableCapital": available,
		"totalCapital":     s.cfg.TotalCapital,
		"openTrades":       open,
		"strategies":       strategies,
	})
}

type strategyBreakdown struct {
	Strategy       string          `json:"strategy"`
	TradesClosed   int             `json:"tradesClosed"`
	WinningTrades  int             `json:"winningTrades"`
	WinRate        decimal.Decimal `json:"winRate"`
	RealizedPnLUSD decimal.Decimal `json:"realizedPnlUsd"`
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.Wallets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	chain, err := chainFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	wallet, err := s.store.GetWallet(r.Context(), address, chain)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	transfers, err := s.store.RecentTransfersByWallet(r.Context(), address, chain, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	closedStatus := types.TradeStatusClosed
	trades, err := s.store.TradesFiltered(r.Context(), &closedStatus, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var filtered []*types.PaperTrade
	for _, t := range trades {
		if t.SourceWallet == address {
			filtered = append(filtered, t)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    wallet,
		"transfers": transfers,
		"trades":    filtered,
	})
}

// handleWalletActivity serves the trailing 24h per-wallet activity rollup.
func (s *Server) handleWalletActivity(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	summaries, err := s.store.WalletActivitySince(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": summaries})
}

func (s *Server) handleSetWalletStatus(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	chain, err := chainFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Status types.WalletStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch body.Status {
	case types.WalletStatusActive, types.WalletStatusPaused, types.WalletStatusDemoted:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", body.Status))
		return
	}

	if err := s.store.SetWalletStatus(r.Context(), address, chain, body.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "chain": chain, "status": body.Status})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	var status *types.TradeStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := types.TradeStatus(raw)
		status = &st
	}
	var strategy *string
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		strategy = &raw
	}

	trades, err := s.store.TradesFiltered(r.Context(), status, strategy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleListDiscovered(w http.ResponseWriter, r *http.Request) {
	var promoted *bool
	if raw := r.URL.Query().Get("promoted"); raw != "" {
		p, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		promoted = &p
	}

	discovered, err := s.store.DiscoveredWallets(r.Context(), promoted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discovered": discovered})
}

func (s *Server) handlePromoteDiscovered(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	chain, err := chainFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.PromoteDiscoveredWallet(r.Context(), address, chain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if errors.Is(err, store.ErrInvalidState) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastWalletPromoted(address, chain)
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address, "chain": chain, "promoted": true})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	inserted, err := s.supervisor.TriggerDiscovery(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	s.supervisor.TriggerIngestTick(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.monitor.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"providers":     statuses,
	})
}

func (s *Server) handleConnectionsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"connections": s.monitor.All()})
}

func chainFromQuery(r *http.Request) (types.Chain, error) {
	raw := r.URL.Query().Get("chain")
	if raw == "" {
		return "", fmt.Errorf("missing required query param %q", "chain")
	}
	return types.Chain(raw), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}
