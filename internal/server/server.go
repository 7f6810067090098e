// Package server provides the HTTP server and routing for wheelhouse.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"wheelhouse/internal/database"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/cycles"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/prices"
	"wheelhouse/internal/modules/reinvest"
	"wheelhouse/internal/modules/snapshots"
	"wheelhouse/internal/modules/trades"
	"wheelhouse/internal/modules/underlyings"
	"wheelhouse/internal/modules/wheel"
)

// Config holds everything the server needs wired in
type Config struct {
	Log     zerolog.Logger
	DB      *database.DB
	Port    int
	DevMode bool
	DataDir string

	Accounts    *accounts.Repository
	Underlyings *underlyings.Repository
	Ledger      *ledger.Service
	Entries     *ledger.Repository
	Lots        *lots.Repository
	Cycles      *cycles.Repository
	Trades      *trades.Service
	Reinvest    *reinvest.Service
	Wheel       *wheel.Repository
	Calculator  *wheel.Calculator
	Snapshots   *snapshots.Service
	Prices      *prices.Service
	Bus         *events.Bus
}

// Server is the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	accountHandlers  *AccountHandlers
	tradeHandlers    *TradeHandlers
	reinvestHandlers *ReinvestHandlers
	wheelHandlers    *WheelHandlers
	priceHandlers    *PriceHandlers
	systemHandlers   *SystemHandlers
	eventsStream     *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),

		accountHandlers:  NewAccountHandlers(cfg.DB, cfg.Accounts, cfg.Ledger, cfg.Entries, cfg.Underlyings, cfg.Lots, cfg.Cycles, cfg.Log),
		tradeHandlers:    NewTradeHandlers(cfg.Trades, cfg.Log),
		reinvestHandlers: NewReinvestHandlers(cfg.Reinvest, cfg.Log),
		wheelHandlers:    NewWheelHandlers(cfg.DB, cfg.Accounts, cfg.Underlyings, cfg.Wheel, cfg.Calculator, cfg.Snapshots, cfg.Log),
		priceHandlers:    NewPriceHandlers(cfg.Prices, cfg.Log),
		systemHandlers:   NewSystemHandlers(cfg.DB, cfg.DataDir, cfg.Log),
		eventsStream:     NewEventsStreamHandler(cfg.Bus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Websocket event stream, registered before the timeout-wrapped
		// routes would matter for long-lived connections
		r.Get("/events/stream", s.eventsStream.ServeHTTP)

		r.Get("/system/status", s.systemHandlers.HandleStatus)

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", s.accountHandlers.HandleCreate)
			r.Get("/", s.accountHandlers.HandleList)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.accountHandlers.HandleGet)
				r.Put("/", s.accountHandlers.HandleUpdate)
				r.Delete("/", s.accountHandlers.HandleDelete)

				r.Post("/deposits", s.tradeHandlers.HandleDeposit)
				r.Post("/trades/stock", s.tradeHandlers.HandleStockTrade)
				r.Post("/trades/option", s.tradeHandlers.HandleOptionTrade)

				r.Get("/ledger", s.accountHandlers.HandleLedger)
				r.Get("/ledger/reconciliation", s.accountHandlers.HandleReconciliation)
				r.Get("/lots", s.accountHandlers.HandleLots)
				r.Get("/underlyings", s.accountHandlers.HandleUnderlyings)
				r.Get("/cycles", s.accountHandlers.HandleCycles)

				r.Get("/signals", s.reinvestHandlers.HandleGetSignals)

				r.Get("/wheel", s.wheelHandlers.HandleGetWheel)
				r.Put("/wheel/targets", s.wheelHandlers.HandlePutTargets)
				r.Put("/wheel/classifications", s.wheelHandlers.HandlePutClassification)
				r.Get("/wheel/snapshot", s.wheelHandlers.HandleGetSnapshot)

				r.Post("/prices/refresh", s.priceHandlers.HandleRefresh)
			})
		})

		r.Post("/signals/{id}/action", s.reinvestHandlers.HandleAction)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
