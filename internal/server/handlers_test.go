package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/termveil/termveil/internal/config"
	"github.com/termveil/termveil/internal/engine"
	"github.com/termveil/termveil/internal/history"
	"github.com/termveil/termveil/internal/logger"
	"github.com/termveil/termveil/internal/rules"
	"go.uber.org/zap"
)

const testRules = `
categories:
  security:
    exploit: pressure_point
    injection: pattern_a
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	log := &logger.Logger{Logger: zap.NewNop()}

	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte(testRules), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	ruleStore, err := rules.NewStore(rulesPath, log)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}
	hist, err := history.NewStore(filepath.Join(dir, "backups"), filepath.Join(dir, "history.json"), log)
	if err != nil {
		t.Fatalf("Failed to create history store: %v", err)
	}

	eng := engine.New(ruleStore, hist, log, engine.Options{})

	cfg := config.GetDefaults()
	cfg.Workspace.RulesFile = rulesPath
	cfg.Server.RateLimit.Enabled = false

	return New(cfg, eng, log)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	t.Run("Encode", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "POST", "/v1/encode", transformRequest{Text: "the exploit"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result engine.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result.Output != "the pressure_point" {
			t.Errorf("Unexpected output: %q", result.Output)
		}
		if result.Operation == nil {
			t.Error("Expected a recorded operation in the response")
		}
	})

	t.Run("EncodePreview", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "POST", "/v1/encode", transformRequest{Text: "the exploit", Preview: true})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var result engine.Result
		json.Unmarshal(rec.Body.Bytes(), &result)
		if result.Operation != nil {
			t.Error("Preview must not record an operation")
		}
	})

	t.Run("DecodeRoundTrip", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "POST", "/v1/decode", transformRequest{Text: "the pressure_point"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var result engine.Result
		json.Unmarshal(rec.Body.Bytes(), &result)
		if result.Output != "the exploit" {
			t.Errorf("Unexpected output: %q", result.Output)
		}
	})

	t.Run("Check", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "POST", "/v1/check", textRequest{Text: "clean text"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var result engine.CheckResult
		json.Unmarshal(rec.Body.Bytes(), &result)
		if !result.Clean {
			t.Error("Expected clean result")
		}

		rec = doJSON(t, srv, "POST", "/v1/check", textRequest{Text: "an injection attempt"})
		json.Unmarshal(rec.Body.Bytes(), &result)
		if result.Clean || len(result.Findings) != 1 {
			t.Errorf("Expected one finding, got %+v", result)
		}
	})

	t.Run("BadRequestBody", func(t *testing.T) {
		srv := newTestServer(t)
		req := httptest.NewRequest("POST", "/v1/encode", bytes.NewBufferString("{broken"))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Rules", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/rules?category=security", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Rules []rules.Rule `json:"rules"`
			Total int          `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Total != 2 {
			t.Errorf("Expected 2 security rules, got %d", body.Total)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/validate", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Valid bool `json:"valid"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if !body.Valid {
			t.Error("Fixture mapping should be valid")
		}
	})

	t.Run("UndoEmptyHistory", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "POST", "/v1/undo", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("Expected 409 for empty history, got %d", rec.Code)
		}
	})

	t.Run("UndoAfterEncode", func(t *testing.T) {
		srv := newTestServer(t)
		doJSON(t, srv, "POST", "/v1/encode", transformRequest{Text: "the exploit"})

		rec := doJSON(t, srv, "POST", "/v1/undo", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body struct {
			Restored string `json:"restored"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Restored != "the exploit" {
			t.Errorf("Expected restored input, got %q", body.Restored)
		}
	})

	t.Run("StatsUnknownOperation", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/stats?operation_id=missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("Completions", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/completions?prefix=pa", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Total int `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Total != 1 {
			t.Errorf("Expected 1 completion for 'pa', got %d", body.Total)
		}
	})

	t.Run("Health", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/health", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
	})

	t.Run("Info", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/info", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Rules int `json:"rules"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Rules != 2 {
			t.Errorf("Expected 2 rules in info, got %d", body.Rules)
		}
	})

	t.Run("CacheStatsDisabled", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/cache/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Enabled bool `json:"enabled"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Enabled {
			t.Error("Cache should report disabled when not configured")
		}
	})

	t.Run("AuditDisabled", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/audit", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var body struct {
			Totals struct {
				TotalOperations int64 `json:"total_operations"`
			} `json:"totals"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Totals.TotalOperations != 0 {
			t.Errorf("Expected zero totals without an audit sink, got %d", body.Totals.TotalOperations)
		}
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv, "GET", "/v1/encode", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer(t)
	srv.limiter = newRateLimiter(60, 2)

	handler := srv.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed, limited := 0, 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/v1/rules", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		switch rec.Code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			limited++
		}
	}

	if allowed == 0 || limited == 0 {
		t.Errorf("Expected both allowed and limited requests, got %d allowed, %d limited", allowed, limited)
	}

	// A different client gets its own bucket.
	req := httptest.NewRequest("GET", "/v1/rules", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Fresh client should not be limited, got %d", rec.Code)
	}
}
