// Package api exposes scanning, equipment and inspection reports over HTTP
// for the capture client.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/xMathyu/hvac-scanner/internal/config"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/resilience"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

// Scanner is the model-backed work the API delegates to.
type Scanner interface {
	ScanLabel(ctx context.Context, images []scanner.Image, opts scanner.ScanOptions) (*scanner.ScanResult, error)
	AnalyzeEquipment(ctx context.Context, images []scanner.Image) (*model.EquipmentAnalysis, error)
	ProcessReport(ctx context.Context, reportID string) (*model.InspectionReport, error)
	BreakerState() resilience.BreakerState
}

// Options configures the HTTP handler.
type Options struct {
	Server        config.ServerConfig
	MaxImageBytes int64
}

// Server holds the handler dependencies.
type Server struct {
	store   store.Store
	scanner Scanner
	opts    Options
}

// NewServer creates the API server.
func NewServer(st store.Store, sc Scanner, opts Options) *Server {
	if opts.Server.MaxUploadBytes <= 0 {
		opts.Server.MaxUploadBytes = 32 << 20
	}
	return &Server{store: st, scanner: sc, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	modelLimit := newClientRateLimiter(perMinute(s.opts.Server.RateLimitPerMin), s.opts.Server.RateLimitBurst)

	r.Route("/api", func(r chi.Router) {
		r.Use(instrument)

		r.Group(func(r chi.Router) {
			r.Use(modelLimit.middleware)
			r.Post("/scans/label", s.handleScanLabel)
			r.Post("/scans/equipment", s.handleAnalyzeEquipment)
		})

		r.Route("/equipment", func(r chi.Router) {
			r.Get("/", s.handleListEquipment)
			r.Post("/", s.handleCreateEquipment)
			r.Get("/export.xlsx", s.handleExportEquipment)
			r.Post("/import", s.handleImportEquipment)
			r.Get("/{id}", s.handleGetEquipment)
			r.Put("/{id}", s.handleUpdateEquipment)
			r.Delete("/{id}", s.handleDeleteEquipment)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleListReports)
			r.Post("/", s.handleCreateReport)
			r.Get("/{id}", s.handleGetReport)
			r.Delete("/{id}", s.handleDeleteReport)
			r.Post("/{id}/images", s.handleUploadImages)
			r.With(modelLimit.middleware).Post("/{id}/process", s.handleProcessReport)
			r.Get("/{id}/export.xlsx", s.handleExportReportXLSX)
			r.Get("/{id}/export.md", s.handleExportReportMarkdown)
		})

		r.Get("/images/{id}", s.handleGetImage)
	})

	return r
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.scanner.BreakerState()
	status := "ok"
	if state == resilience.BreakerOpen {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        status,
		"visionBreaker": state.String(),
	})
}
