// Package httpapi serves the drawing analysis pipeline over HTTP.
//
// Routes:
//
//	POST /parse_dxf   full analysis of a drawing
//	GET  /health      liveness
//	GET  /history     recent analyses (?limit=N)
//	GET  /metrics     Prometheus exposition
//
// Failures answer with {"detail": "..."} and the status of the error's
// category: 404 for missing files, 400 for rejected input, 500 otherwise.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/async"
	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/history"
	"github.com/ironsheep/cad-analyzer-mcp/internal/pipeline"
)

// maxBodyBytes bounds request bodies; they only carry a path and options.
const maxBodyBytes = 1 << 20

// Service is the part of the orchestrator the HTTP surface needs.
type Service interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	History(ctx context.Context, limit int) ([]history.Record, error)
}

// ParseRequest is the body of POST /parse_dxf.
type ParseRequest struct {
	FilePath    string `json:"file_path"`
	ModelChoice string `json:"model_choice"`
	MaxEntities int    `json:"max_entities"`
}

// API holds the HTTP handlers.
type API struct {
	svc          Service
	pool         *async.Pool
	logger       *zap.Logger
	defaultModel string
	maxEntities  int
	mux          *http.ServeMux
}

// New builds the API. Analyses run on pool so concurrent requests are
// bounded by its worker count.
func New(svc Service, pool *async.Pool, cfg *common.Config, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		svc:          svc,
		pool:         pool,
		logger:       logger,
		defaultModel: cfg.Summarizer.DefaultModel,
		maxEntities:  cfg.Extraction.MaxEntities,
		mux:          http.NewServeMux(),
	}
	a.registerRoutes()
	return a
}

func (a *API) registerRoutes() {
	a.mux.HandleFunc("/parse_dxf", a.handleParse)
	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.HandleFunc("/history", a.handleHistory)
	a.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// handleParse handles POST /parse_dxf.
func (a *API) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ParseRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ModelChoice == "" {
		req.ModelChoice = a.defaultModel
	}
	if req.MaxEntities <= 0 {
		req.MaxEntities = a.maxEntities
	}

	var resp *pipeline.Response
	err := a.pool.Do(r.Context(), "parse_dxf", func(ctx context.Context) error {
		var err error
		resp, err = a.svc.Process(ctx, pipeline.Request{
			FilePath:    req.FilePath,
			ModelChoice: req.ModelChoice,
			MaxEntities: req.MaxEntities,
		})
		return err
	})
	if err != nil {
		a.writeError(w, req.FilePath, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleHistory handles GET /history.
func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %q", v))
			return
		}
		limit = n
	}

	recs, err := a.svc.History(r.Context(), limit)
	if err != nil {
		a.writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": recs})
}

func (a *API) writeError(w http.ResponseWriter, file string, err error) {
	status := common.HTTPStatus(err)
	detail := common.Detail(err)

	switch {
	case errors.Is(err, async.ErrClosed):
		status = http.StatusServiceUnavailable
		detail = "Server is shutting down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		detail = "Request canceled: " + err.Error()
	case status == http.StatusInternalServerError && !errors.Is(err, common.ErrConversion):
		detail = "Error processing file: " + detail
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("file", file), zap.Int("status", status), zap.Error(err))
	} else {
		a.logger.Info("request rejected", zap.String("file", file), zap.Int("status", status), zap.Error(err))
	}
	writeDetail(w, status, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeJSON writes v as JSON. CJK text is left unescaped.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
