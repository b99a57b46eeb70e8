package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tidemarket/escrow/internal/config"
	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/metrics"
	"github.com/tidemarket/escrow/internal/model"
	"github.com/tidemarket/escrow/internal/vault"
)

// Collection is the administrative surface of a registered collection.
// The trading surface reaches collections through the engine; these
// methods let the API mint, grant roles, and manage escrow approval.
type Collection interface {
	Mint(ctx context.Context, caller, to model.Address, tokenID string, quantity uint64) error
	SetApprovalForAll(caller, operator model.Address, approved bool) error
	GrantMinter(caller, account model.Address) error
	RevokeMinter(caller, account model.Address) error
}

// Server exposes the engine's operations over HTTP and WebSocket.
type Server struct {
	cfg         *config.MarketplaceConfig
	engine      *market.Engine
	feed        *event.Feed
	bank        *vault.Vault
	collections map[model.Address]Collection
	metrics     *metrics.Registry
	logger      *slog.Logger

	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu   sync.Mutex
	addr string
}

// New creates a Server wired to the engine and feed. The metrics registry
// may be nil; the exposition route is only mounted when it is present.
func New(cfg *config.MarketplaceConfig, engine *market.Engine, feed *event.Feed, bank *vault.Vault, collections map[model.Address]Collection, reg *metrics.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg,
		engine:      engine,
		feed:        feed,
		bank:        bank,
		collections: collections,
		metrics:     reg,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/listings", s.handleGetListings).Methods("GET")
	r.HandleFunc("/v1/listings", s.handleCreateListing).Methods("POST")
	r.HandleFunc("/v1/listings/{collection}/{token}", s.handleGetListing).Methods("GET")
	r.HandleFunc("/v1/listings/{collection}/{token}/cancel", s.handleCancel).Methods("POST")
	r.HandleFunc("/v1/listings/{collection}/{token}/reprice", s.handleReprice).Methods("POST")
	r.HandleFunc("/v1/listings/{collection}/{token}/buy", s.handleBuy).Methods("POST")
	r.HandleFunc("/v1/proceeds/{account}", s.handleGetProceeds).Methods("GET")
	r.HandleFunc("/v1/proceeds/{account}/withdraw", s.handleWithdraw).Methods("POST")
	r.HandleFunc("/v1/fee", s.handleSetFee).Methods("POST")
	r.HandleFunc("/v1/totals", s.handleTotals).Methods("GET")
	r.HandleFunc("/v1/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/v1/collections/{collection}/mint", s.handleMint).Methods("POST")
	r.HandleFunc("/v1/collections/{collection}/approve", s.handleApprove).Methods("POST")
	r.HandleFunc("/v1/collections/{collection}/minters", s.handleMinters).Methods("POST")
	r.HandleFunc("/v1/accounts/{account}", s.handleGetBalance).Methods("GET")
	r.HandleFunc("/v1/accounts/{account}/deposit", s.handleDeposit).Methods("POST")
	if reg != nil {
		r.Handle(cfg.Metrics.Path, reg.Handler()).Methods("GET")
	}
	r.Use(s.observe)
	s.router = r

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", s.Addr())
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.logger.Info("http server stopped")
	return err
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes the upgrade request through to the wrapped writer so the
// event stream route still works behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// observe records every served request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		if s.metrics != nil {
			s.metrics.RecordHTTP(r.Method, route, rec.status)
		}
		s.logger.Debug("request served",
			"method", r.Method,
			"route", route,
			"status", rec.status,
		)
	})
}
