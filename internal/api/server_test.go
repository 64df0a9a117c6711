package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/starkpool/coordinator/internal/coordinator"
	"github.com/starkpool/coordinator/internal/notify"
	"github.com/starkpool/coordinator/internal/payout"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/validator"
)

type stubWSHandler struct{ called bool }

func (h *stubWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := store.NewRedisStore(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	v := validator.New(s, nil)
	p := payout.New(s, 2.0)
	n := notify.NewNotifier(&notify.WebhookConfig{Enabled: false})
	coord := coordinator.New(s, v, p, n, nil, 2.0)

	server := NewServer(&Config{Bind: ":0"}, coord, &stubWSHandler{})
	return server, s
}

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)
	if server == nil || server.router == nil {
		t.Fatal("NewServer returned an incomplete server")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCORSHeaders(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/stats", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header not set")
	}
}

func TestHandleStatsEmpty(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats store.PoolStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestHandleMinerStatsInvalidAddress(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/stats/x", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleMinerStatsNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/stats/nonexistent-miner", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleMinerStatsFound(t *testing.T) {
	server, s := setupTestServer(t)
	s.PutMiner(context.Background(), &store.MinerRecord{Address: "alice-miner-01", TotalDifficulty: "0", IsActive: true})

	req := httptest.NewRequest("GET", "/api/stats/alice-miner-01", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats store.MinerStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Address != "alice-miner-01" {
		t.Errorf("address = %s, want alice-miner-01", stats.Address)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRootUpgradesToWebSocketHandler(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSwitchingProtocols)
	}
}

func TestServerStartStop(t *testing.T) {
	server, _ := setupTestServer(t)

	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := server.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestServerStopNotStarted(t *testing.T) {
	server, _ := setupTestServer(t)
	if err := server.Stop(); err != nil {
		t.Errorf("Stop() on unstarted server returned error: %v", err)
	}
}
