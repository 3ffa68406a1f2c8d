package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cultsim/internal/config"
	"github.com/talgya/cultsim/internal/engine"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.CORSOrigins = []string{"https://class.example.org"}
	s := NewServer(cfg)
	return s, s.Handler()
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestModels(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(h, "/api/v1/models")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models []struct {
			Name   string             `json:"name"`
			Params map[string]float64 `json:"params"`
			Seed   *int64             `json:"seed"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Models, len(engine.ModelNames))
	for i, m := range body.Models {
		assert.Equal(t, engine.ModelNames[i], m.Name)
		assert.NotEmpty(t, m.Params)
	}
	assert.Equal(t, 1000.0, body.Models[1].Params["n"])
}

func TestRunJSON(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(h, "/api/v1/run/unbiased?n=20&generations=5&replicates=3&seed=9")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Model string `json:"model"`
		Seed  int64  `json:"seed"`
		Table struct {
			Columns []string    `json:"columns"`
			Rows    [][]float64 `json:"rows"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, engine.ModelUnbiased, body.Model)
	assert.Equal(t, int64(9), body.Seed)
	assert.Equal(t, []string{"run1", "run2", "run3"}, body.Table.Columns)
	assert.Len(t, body.Table.Rows, 5)
}

func TestRunCSVIsReproducible(t *testing.T) {
	_, h := newTestServer(t)
	target := "/api/v1/run/random-walk?generations=10&replicates=2&format=csv"

	first := get(h, target)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", first.Header().Get("Content-Type"))
	assert.Contains(t, first.Header().Get("Content-Disposition"), "random-walk.csv")

	lines := strings.Split(strings.TrimSpace(first.Body.String()), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "run1,run2", lines[0])

	second := get(h, target)
	assert.Equal(t, first.Body.String(), second.Body.String(), "configured seed 1055 pins the output")
}

func TestRunCSVMean(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(h, "/api/v1/run/directional?generations=4&format=csv&mean=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "run1,mean\n"))
}

func TestRunDoesNotMutateConfig(t *testing.T) {
	s, h := newTestServer(t)
	rec := get(h, "/api/v1/run/indirect-bias?n=50&generations=3&replicates=1&seed=4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, s.Config.IndirectBias.N)
	assert.Nil(t, s.Config.IndirectBias.Seed)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown model", "/api/v1/run/moran", http.StatusNotFound},
		{"unparsable number", "/api/v1/run/unbiased?n=many", http.StatusBadRequest},
		{"unparsable seed", "/api/v1/run/unbiased?seed=x", http.StatusBadRequest},
		{"probability out of range", "/api/v1/run/unbiased?p0=1.5", http.StatusBadRequest},
		{"no generations", "/api/v1/run/random-walk?generations=0", http.StatusBadRequest},
		{"start range too wide", "/api/v1/run/random-walk?start_min=-9223372036854775808&start_max=9223372036854775807", http.StatusBadRequest},
		{"bad streams", "/api/v1/run/random-walk?streams=twisted", http.StatusBadRequest},
		{"bad format", "/api/v1/run/random-walk?generations=2&format=xml", http.StatusBadRequest},
		{"too much work", "/api/v1/run/indirect-bias?n=100000&generations=1000", http.StatusRequestEntityTooLarge},
		{"degenerate payoffs", "/api/v1/run/indirect-bias?s=1e308&p0=1&n=10&generations=3", http.StatusUnprocessableEntity},
		{"wrong method", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t)
			var rec *httptest.ResponseRecorder
			if tt.target == "" {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/run/unbiased", nil)
				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, req)
			} else {
				rec = get(h, tt.target)
			}
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil)
	req.Header.Set("Origin", "https://class.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://class.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "budgets are per IP")
	assert.Equal(t, 61, rl.RetryAfter("1.2.3.4"))
	assert.Equal(t, 0, rl.RetryAfter("9.9.9.9"))

	clock = clock.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"), "window rolled over")

	clock = clock.Add(5 * time.Minute)
	rl.Allow("1.2.3.4")
	rl.mu.Lock()
	_, stale := rl.buckets["5.6.7.8"]
	rl.mu.Unlock()
	assert.False(t, stale, "stale buckets are dropped")
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RunsPerHour = 1
	h := NewServer(cfg).Handler()

	target := "/api/v1/run/random-walk?generations=2"
	assert.Equal(t, http.StatusOK, get(h, target).Code)
	rec := get(h, target)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/models").Code, "listing models is not rate limited")
}

func TestClientIP(t *testing.T) {
	proxies := map[string]bool{"10.0.0.1": true, "10.0.0.2": true}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", clientIP(req, proxies))

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "198.51.100.4", clientIP(req, proxies), "untrusted peers cannot pick their key")

	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.7, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", clientIP(req, proxies), "rightmost untrusted hop")

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", clientIP(req, proxies))
}

func TestForwardedForCannotBypassLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RunsPerHour = 1
	h := NewServer(cfg).Handler()

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/run/random-walk?generations=2", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"))
}

func TestTrustedProxyForwardsClient(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RunsPerHour = 1
	cfg.Server.TrustedProxies = []string{"10.0.0.1"}
	h := NewServer(cfg).Handler()

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/run/random-walk?generations=2", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"), "each forwarded client has its own budget")
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
}
