package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rexbot/internal/models"
	"rexbot/internal/store"
)

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", store.NewInMemoryStore())

	rec := doRequest(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("body = %s err = %v", rec.Body.String(), err)
	}
}

func TestMetricsExposed(t *testing.T) {
	s := NewServer(":0", store.NewInMemoryStore())

	rec := doRequest(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdminStats(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	future := time.Now().Add(48 * time.Hour)
	if err := st.CreateUser(ctx, &models.User{ID: 1, SubscriptionExpiresAt: &future}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	s := NewServer(":0", st)

	rec := doRequest(t, s, "/admin/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats models.AdminStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalUsers != 1 || stats.ActiveSubscriptions != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAdminStatsWithoutStore(t *testing.T) {
	s := NewServer(":0", nil)

	rec := doRequest(t, s, "/admin/stats")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
