// Package rpc serves the trade service over Connect (JSON) and streams
// transaction notifications over a websocket.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServiceName is the fully qualified name of the trade service
const ServiceName = "trader.v1.TradeService"

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Str("component", "rpc").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the RPC server
type ServerConfig struct {
	Address               string
	AllowedOrigins        []string
	EnableMetrics         bool
	RatePerMinute         int
	MaxConcurrentRequests int
	Telemetry             *TelemetryConfig
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:               "localhost:8080",
		AllowedOrigins:        []string{"http://localhost:3000", "http://localhost:8080"},
		EnableMetrics:         true,
		MaxConcurrentRequests: 200,
		Telemetry:             DefaultTelemetryConfig(),
	}
}

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config       *ServerConfig
	httpServer   *http.Server
	handler      http.Handler
	otelShutdown func(context.Context) error
}

// NewServer creates a new RPC server serving trader
func NewServer(ctx context.Context, config *ServerConfig, trader *TradeServer) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if trader == nil {
		return nil, errors.New("trade server is required")
	}

	var otelShutdown func(context.Context) error
	if config.Telemetry.enabled() {
		shutdown, err := SetupTelemetry(ctx, config.Telemetry)
		if err != nil {
			// serve without telemetry rather than not at all
			Logger.Error().Err(err).Msg("Failed to initialize OpenTelemetry")
		} else {
			otelShutdown = shutdown
		}
	}

	mux := chi.NewMux()
	mux.Use(requestLogger)
	mux.Use(recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(cloudflareIP)
	if config.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(config.RatePerMinute, time.Minute))
	}

	// long lived, kept out of the timeout, compression and throttle middlewares
	mux.Handle("/notifications/ws", newNotificationStream(trader.notifier, config.AllowedOrigins))

	connectOpts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithRecover(recoverHandler),
		connect.WithInterceptors(loggingInterceptor(), noStoreInterceptor()),
	}
	if config.Telemetry != nil && config.Telemetry.EnableTracing {
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			Logger.Warn().Err(err).Msg("Failed to create OTEL interceptor, continuing without it")
		} else {
			connectOpts = append(connectOpts, connect.WithInterceptors(otelInterceptor))
		}
	}

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(middleware.Timeout(60 * time.Second))
		if config.MaxConcurrentRequests > 0 {
			r.Use(middleware.Throttle(config.MaxConcurrentRequests))
		}

		metricsEnabled := config.EnableMetrics || (config.Telemetry != nil && config.Telemetry.UsePrometheus)
		if metricsEnabled {
			r.Handle("/server/metrics", promhttp.Handler())
		}
		r.Get("/server/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"healthy","service":"spectra-trade"}`))
		})
		r.Get("/server/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ready"}`))
		})

		for path, handler := range tradeServiceHandlers(trader, connectOpts...) {
			r.Handle(path, handler)
		}
	})

	handler := h2c.NewHandler(newCORSHandler(config.AllowedOrigins, mux), &http2.Server{})
	return &Server{
		config:  config,
		handler: handler,
		httpServer: &http.Server{
			Addr:              config.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		otelShutdown: otelShutdown,
	}, nil
}

// procedure returns the path of a TradeService method
func procedure(method string) string {
	return "/" + ServiceName + "/" + method
}

func tradeServiceHandlers(s *TradeServer, opts ...connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		procedure("GetSell"):                connect.NewUnaryHandler(procedure("GetSell"), s.GetSell, opts...),
		procedure("GetBuy"):                 connect.NewUnaryHandler(procedure("GetBuy"), s.GetBuy, opts...),
		procedure("GetSellTwap"):            connect.NewUnaryHandler(procedure("GetSellTwap"), s.GetSellTwap, opts...),
		procedure("GetBuyTwap"):             connect.NewUnaryHandler(procedure("GetBuyTwap"), s.GetBuyTwap, opts...),
		procedure("GetSellPriceDifference"): connect.NewUnaryHandler(procedure("GetSellPriceDifference"), s.GetSellPriceDifference, opts...),
		procedure("GetSettings"):            connect.NewUnaryHandler(procedure("GetSettings"), s.GetSettings, opts...),
		procedure("UpdateSettings"):         connect.NewUnaryHandler(procedure("UpdateSettings"), s.UpdateSettings, opts...),
		procedure("ListAssets"):             connect.NewUnaryHandler(procedure("ListAssets"), s.ListAssets, opts...),
		procedure("SubmitTransaction"):      connect.NewUnaryHandler(procedure("SubmitTransaction"), s.SubmitTransaction, opts...),
		procedure("DismissProgress"):        connect.NewUnaryHandler(procedure("DismissProgress"), s.DismissProgress, opts...),
	}
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving RPC requests without TLS
func (s *Server) Start() error {
	s.logServerInfo("http")
	return s.httpServer.ListenAndServe()
}

// StartTLS begins serving RPC requests with TLS
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logServerInfo("https")
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) logServerInfo(protocol string) {
	Logger.Info().
		Str("address", s.config.Address).
		Str("protocol", protocol).
		Msg("Spectra Trade RPC Server starting")
	Logger.Info().Msgf("\tRPC: /%s/*", ServiceName)
	Logger.Info().Msg("\tNotifications: /notifications/ws")
	Logger.Info().Msg("\tHealth: /server/health")
	Logger.Info().Msg("\tReady: /server/ready")
	if s.config.EnableMetrics || (s.config.Telemetry != nil && s.config.Telemetry.UsePrometheus) {
		Logger.Info().Msg("\tMetrics: /server/metrics")
	}
}

// Shutdown gracefully shuts down the server, then flushes telemetry
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("Shutting down RPC server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		Logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}
	if s.otelShutdown != nil {
		if err := s.otelShutdown(ctx); err != nil {
			Logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
			return err
		}
	}

	Logger.Info().Msg("Server shutdown complete")
	return nil
}

func recoverHandler(ctx context.Context, spec connect.Spec, header http.Header, p any) error {
	Logger.Error().
		Interface("panic", p).
		Str("procedure", spec.Procedure).
		Msg("Panic in RPC handler")
	return connect.NewError(connect.CodeInternal, fmt.Errorf("internal server error"))
}
