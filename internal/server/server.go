// Package server exposes the responder over HTTP: status, on-demand runs,
// policy refreshes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
)

// Service is the subset of workflow.Service the HTTP surface drives.
type Service interface {
	ProcessOnce(ctx context.Context, maxEmails int) (*core.BatchReport, error)
	RefreshPolicies(ctx context.Context) error
	Status(ctx context.Context) core.Status
}

// Server holds the router and its dependencies.
type Server struct {
	service   Service
	metrics   http.Handler
	cfg       config.ServerConfig
	logger    *zap.Logger
	http      *http.Server
	startTime time.Time

	// baseCtx parents every request context; Stop cancels it so an
	// on-demand batch starts no further emails.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a Server. metricsHandler may be nil, in which case /metrics
// is not mounted.
func New(service Service, metricsHandler http.Handler, cfg config.ServerConfig, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		service:   service,
		metrics:   metricsHandler,
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	s.http = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Routes returns the configured handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/process", s.handleProcess)
	r.Post("/refresh", s.handleRefresh)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Start listens in the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	go func() {
		if err := s.Serve(l); err != nil {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Serve handles requests on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP server starting", zap.String("address", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels running requests and drains them until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleStatus answers 503 while any component is unready.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status(r.Context())
	code := http.StatusOK
	for _, ready := range st.Components {
		if !ready {
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, st)
}

type processResponse struct {
	Report *core.BatchReport `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	maxEmails := 0
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_max", "max must be a non-negative integer")
			return
		}
		maxEmails = n
	}

	report, err := s.service.ProcessOnce(r.Context(), maxEmails)
	if err != nil {
		var stageErr *core.StageError
		if errors.As(err, &stageErr) && stageErr.Kind == core.KindFetchFailed {
			writeJSON(w, http.StatusBadGateway, processResponse{Report: report, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, processResponse{Report: report, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{Report: report})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RefreshPolicies(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, string(core.KindIndexBuildFailed), err.Error())
		return
	}
	st := s.service.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"index_version":   st.IndexVersion,
		"index_documents": st.IndexDocuments,
		"index_chunks":    st.IndexChunks,
	})
}
