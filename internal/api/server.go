// Package api serves simulation runs over HTTP.
// GET /api/v1/models lists the models and their default parameters.
// GET /api/v1/run/{model} runs one simulation and returns its table as CSV or JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/cultsim/internal/config"
	"github.com/talgya/cultsim/internal/engine"
	"github.com/talgya/cultsim/internal/results"
)

// Server serves simulation runs. Config supplies defaults that query
// parameters override per request; it is never mutated.
type Server struct {
	Config  *config.Config
	limiter *RateLimiter
}

// NewServer creates a Server for cfg.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		Config:  cfg,
		limiter: NewRateLimiter(cfg.Server.RunsPerHour, time.Hour),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/models", s.handleModels)
	mux.HandleFunc("GET /api/v1/run/{model}", RateLimitMiddleware(s.limiter, s.Config.Server.TrustedProxies, s.handleRun))
	return corsMiddleware(s.Config.Server.CORSOrigins, mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API starting", "addr", srv.Addr, "runs_per_hour", s.Config.Server.RunsPerHour)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("HTTP API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	type modelEntry struct {
		Name        string             `json:"name"`
		Params      map[string]float64 `json:"params"`
		Generations int                `json:"generations"`
		Replicates  int                `json:"replicates"`
		Seed        *int64             `json:"seed,omitempty"`
	}

	models := make([]modelEntry, 0, len(engine.ModelNames))
	for _, name := range engine.ModelNames {
		m, rc, err := s.Config.Model(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		models = append(models, modelEntry{
			Name:        name,
			Params:      m.Params(),
			Generations: rc.Generations,
			Replicates:  rc.Replicates,
			Seed:        rc.Seed,
		})
	}
	writeJSON(w, map[string]any{"models": models})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("model")
	q := r.URL.Query()

	cfg := *s.Config
	if err := applyQuery(&cfg, name, q); err != nil {
		writeError(w, err)
		return
	}
	if work := cfg.Work(name); work > cfg.Server.MaxWork {
		http.Error(w, fmt.Sprintf("run too large: %d > max_work %d", work, cfg.Server.MaxWork), http.StatusRequestEntityTooLarge)
		return
	}

	m, rc, err := cfg.Model(name)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := rc.Options()
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := engine.Run(m, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	switch strings.ToLower(q.Get("format")) {
	case "", "json":
		writeJSON(w, res)
	case "csv":
		writeCSV(w, res, q.Get("mean") == "true")
	default:
		http.Error(w, "format must be json or csv", http.StatusBadRequest)
	}
}

// applyQuery overrides the named model's config section with query parameters.
func applyQuery(cfg *config.Config, name string, q url.Values) error {
	p := paramReader{q: q}
	var rc *config.RunConfig

	switch name {
	case engine.ModelUnbiased:
		u := cfg.Unbiased
		p.int("n", &u.N)
		p.float("p0", &u.P0)
		cfg.Unbiased = u
		rc = &cfg.Unbiased.RunConfig
	case engine.ModelIndirectBias:
		b := cfg.IndirectBias
		p.int("n", &b.N)
		p.float("s", &b.S)
		p.float("p0", &b.P0)
		cfg.IndirectBias = b
		rc = &cfg.IndirectBias.RunConfig
	case engine.ModelDirectional:
		d := cfg.Directional
		p.float("x0", &d.X0)
		p.float("c", &d.C)
		p.float("sigma", &d.Sigma)
		p.str("noise", &d.Noise)
		cfg.Directional = d
		rc = &cfg.Directional.RunConfig
	case engine.ModelRandomWalk:
		wk := cfg.RandomWalk
		p.float("bias", &wk.Bias)
		p.int("start_min", &wk.StartMin)
		p.int("start_max", &wk.StartMax)
		cfg.RandomWalk = wk
		rc = &cfg.RandomWalk.RunConfig
	default:
		return fmt.Errorf("%w: %q", engine.ErrUnknownModel, name)
	}

	p.int("generations", &rc.Generations)
	p.int("replicates", &rc.Replicates)
	p.int("workers", &rc.Workers)
	p.str("streams", &rc.Streams)
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail("seed", err)
		} else {
			rc.Seed = &n
		}
	}
	return p.err
}

// paramReader parses query parameters, keeping the first error.
type paramReader struct {
	q   url.Values
	err error
}

func (p *paramReader) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: query parameter %s: %w", engine.ErrInvalidParameter, key, err)
	}
}

func (p *paramReader) int(key string, dst *int) {
	if v := p.q.Get(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, err)
			return
		}
		*dst = n
	}
}

func (p *paramReader) float(key string, dst *float64) {
	if v := p.q.Get(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, err)
			return
		}
		*dst = f
	}
}

func (p *paramReader) str(key string, dst *string) {
	if v := p.q.Get(key); v != "" {
		*dst = v
	}
}

// writeError maps engine errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownModel):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNumericDegeneracy):
		status = http.StatusUnprocessableEntity
	default:
		slog.Error("simulation failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeCSV(w http.ResponseWriter, res *results.Result, withMean bool) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Model+".csv"))
	write := res.Table.WriteCSV
	if withMean {
		write = res.Table.WriteMeanCSV
	}
	if err := write(w); err != nil {
		slog.Error("csv write failed", "model", res.Model, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("json write failed", "error", err)
	}
}
