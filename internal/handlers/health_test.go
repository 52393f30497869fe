package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
}

func (s stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.0.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
		WithHealthRepository(stubHealthRepository{err: errors.New("must not be called")}),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	want := healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     "1.0.0",
		CommitSHA:   "abc123",
		Environment: "prod",
		Uptime:      "30s",
		Timestamp:   "2025-01-01T00:00:30Z",
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Fatalf("unexpected body (-want +got):\n%s", diff)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)
	cases := []struct {
		name    string
		repo    stubHealthRepository
		status  int
		details []string
	}{
		{
			name: "ok",
			repo: stubHealthRepository{report: domain.HealthReport{Status: domain.HealthStatusOK, Checks: map[string]domain.HealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 10 * time.Millisecond},
			}}},
			status: http.StatusOK,
		},
		{
			name: "degraded",
			repo: stubHealthRepository{report: domain.HealthReport{Status: domain.HealthStatusDegraded, Checks: map[string]domain.HealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Detail: "ok"},
				"pubsub":    {Status: domain.HealthStatusDegraded, Detail: "publish failed"},
			}}},
			status:  http.StatusServiceUnavailable,
			details: []string{"pubsub: publish failed"},
		},
		{
			name:    "collect error",
			repo:    stubHealthRepository{err: errors.New("boom")},
			status:  http.StatusServiceUnavailable,
			details: []string{"boom"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handlers := NewHealthHandlers(WithHealthRepository(tc.repo), WithHealthClock(func() time.Time { return now }))
			rr := httptest.NewRecorder()
			handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body healthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if diff := cmp.Diff(tc.details, body.Details); diff != "" {
				t.Fatalf("unexpected details (-want +got):\n%s", diff)
			}
		})
	}
}
