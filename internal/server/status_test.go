package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/tetherctl/internal/testutil/testlog"
	"github.com/danmuck/tetherctl/internal/tether"
)

type staticStatus tether.Status

func (s staticStatus) Status() tether.Status {
	return tether.Status(s)
}

func TestStatusRoutes(t *testing.T) {
	testlog.Start(t)
	src := staticStatus{
		Endpoint:          "ops@vm-a:22",
		State:             tether.StateConnected,
		SessionGeneration: 3,
		BootToken:         "2025-06-12 10:30:00",
		Episodes:          2,
	}
	router := NewRouter(src, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status status: %d", rec.Code)
	}
	var got tether.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.State != tether.StateConnected || got.SessionGeneration != 3 {
		t.Fatalf("unexpected status payload: %+v", got)
	}
	if got.BootToken != "2025-06-12 10:30:00" {
		t.Fatalf("unexpected boot token: %q", got.BootToken)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics body missing default collectors")
	}
}
