// Package server exposes inference, explanation and analyst feedback over
// HTTP/JSON.
//
// Routes:
//
//	POST /v1/predict                    Score flow rows; trusted source IPs are suppressed
//	POST /v1/explain                    Top deviating features for flow rows
//	POST /v1/feedback/false-positive    Trust an ip (rate limited per client)
//	POST /v1/feedback/revoke            Revoke a trusted ip
//	GET  /v1/feedback/trusted           List the trust ledger
//	POST /v1/retrain                    Set the retrain marker
//	POST /v1/model/reload               Reload the artifact from disk
//	GET  /healthz                       Liveness plus model readiness
//	GET  /metrics                       Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/argus-v/argus-ml/internal/feedback"
	"github.com/argus-v/argus-ml/internal/inference"
)

// Config holds the HTTP settings.
type Config struct {
	Port              int
	FeedbackRateLimit float64 // requests per second per client
	FeedbackBurst     int
}

// Server serves the argus-ml HTTP API.
type Server struct {
	cfg      Config
	loader   *inference.Loader
	feedback *feedback.Manager
	limiter  *RateLimiter
	logger   *zap.Logger
	router   *mux.Router
}

// New creates a Server. A nil logger disables logging.
func New(cfg Config, loader *inference.Loader, fb *feedback.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		loader:   loader,
		feedback: fb,
		limiter:  NewRateLimiter(rate.Limit(cfg.FeedbackRateLimit), cfg.FeedbackBurst),
		logger:   logger.Named("server"),
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/predict", s.Predict).Methods("POST")
	api.HandleFunc("/explain", s.Explain).Methods("POST")
	api.Handle("/feedback/false-positive", s.limiter.Limit(http.HandlerFunc(s.ReportFalsePositive))).Methods("POST")
	api.HandleFunc("/feedback/revoke", s.Revoke).Methods("POST")
	api.HandleFunc("/feedback/trusted", s.ListTrusted).Methods("GET")
	api.HandleFunc("/retrain", s.TriggerRetrain).Methods("POST")
	api.HandleFunc("/model/reload", s.ReloadModel).Methods("POST")

	s.router.HandleFunc("/healthz", s.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Run listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.Int("port", s.cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
