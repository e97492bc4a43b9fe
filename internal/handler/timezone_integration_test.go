package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/timezone"
	"github.com/richcast/richcast/internal/transport"
)

func TestTimezoneIntegration_Resolve(t *testing.T) {
	t.Parallel()

	resolver := &stubTimezoneResolver{
		resolveFn: func(ctx context.Context, userID string, evidence timezone.Evidence) (*domain.UserTimezoneInfo, bool, error) {
			if evidence.ProfileTimezone == "Asia/Tokyo" {
				return &domain.UserTimezoneInfo{
					UserID:     userID,
					Timezone:   "Asia/Tokyo",
					UTCOffset:  9,
					Method:     domain.MethodProfileDirect,
					Confidence: 0.95,
				}, true, nil
			}
			return nil, false, nil
		},
	}

	app := newTimezoneTestApp(t, resolver, &stubTimezoneStats{})

	validBody := `{"userId":"u1","profileTimezone":"Asia/Tokyo"}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/timezones/resolve", validBody)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Resolved bool `json:"resolved"`
		Timezone struct {
			Timezone   string  `json:"timezone"`
			Method     string  `json:"method"`
			Confidence float64 `json:"confidence"`
		} `json:"timezone"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Resolved || parsed.Timezone.Timezone != "Asia/Tokyo" {
		t.Fatalf("parsed = %+v, want resolved Asia/Tokyo", parsed)
	}
	if parsed.Timezone.Confidence != 0.95 {
		t.Fatalf("confidence = %v, want 0.95", parsed.Timezone.Confidence)
	}

	noEvidenceBody := `{"userId":"u2"}`
	resp, body = performRequest(t, app, http.MethodPost, "/v1/timezones/resolve", noEvidenceBody)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var unresolved map[string]any
	if err := json.Unmarshal(body, &unresolved); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if unresolved["resolved"] != false {
		t.Fatalf("resolved = %v, want false when no method matches", unresolved["resolved"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/timezones/resolve", `{"userId":""}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing user id", resp.StatusCode)
	}
}

func TestTimezoneIntegration_ManualUpdateAndLookup(t *testing.T) {
	t.Parallel()

	resolver := &stubTimezoneResolver{
		manualUpdateFn: func(ctx context.Context, userID, zone string, preferredHour *int) (*domain.UserTimezoneInfo, error) {
			if zone != "Europe/Berlin" {
				return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, zone)
			}
			if preferredHour == nil || *preferredHour != 8 {
				t.Fatalf("preferredHour = %v, want 8", preferredHour)
			}
			return &domain.UserTimezoneInfo{
				UserID:        userID,
				Timezone:      zone,
				UTCOffset:     1,
				Method:        domain.MethodManualUpdate,
				Confidence:    1.0,
				PreferredHour: preferredHour,
			}, nil
		},
		lookupFn: func(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error) {
			if userID == "u-known" {
				return &domain.UserTimezoneInfo{
					UserID:   "u-known",
					Timezone: "Asia/Bangkok",
					Method:   domain.MethodLocationCity,
				}, nil
			}
			return nil, domain.ErrNotFound
		},
	}

	app := newTimezoneTestApp(t, resolver, &stubTimezoneStats{})

	resp, body := performRequest(t, app, http.MethodPut, "/v1/timezones/u1", `{"timezone":"Europe/Berlin","preferredHour":8}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var updated map[string]any
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if updated["method"] != domain.MethodManualUpdate.String() {
		t.Fatalf("method = %v, want manual_update", updated["method"])
	}
	if updated["confidence"] != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", updated["confidence"])
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/v1/timezones/u1", `{"timezone":"Nowhere/Unknown"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown zone", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/timezones/u-known", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/timezones/u-missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTimezoneIntegration_Stats(t *testing.T) {
	t.Parallel()

	stats := &stubTimezoneStats{
		statsFn: func(ctx context.Context) (*timezone.Stats, error) {
			return &timezone.Stats{
				TotalUsers:    12,
				TimezoneCount: 3,
				UsersByTimezone: map[string]int{
					"Asia/Bangkok": 8,
					"Asia/Tokyo":   3,
					"Europe/Rome":  1,
				},
			}, nil
		},
	}

	app := newTimezoneTestApp(t, &stubTimezoneResolver{}, stats)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/timezones/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed struct {
		TotalUsers      int            `json:"totalUsers"`
		TimezoneCount   int            `json:"timezoneCount"`
		UsersByTimezone map[string]int `json:"usersByTimezone"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.TotalUsers != 12 || parsed.TimezoneCount != 3 {
		t.Fatalf("stats = %+v, want 12 users across 3 zones", parsed)
	}
	if parsed.UsersByTimezone["Asia/Bangkok"] != 8 {
		t.Fatalf("bangkok count = %d, want 8", parsed.UsersByTimezone["Asia/Bangkok"])
	}
}

type stubTimezoneResolver struct {
	resolveFn      func(ctx context.Context, userID string, evidence timezone.Evidence) (*domain.UserTimezoneInfo, bool, error)
	manualUpdateFn func(ctx context.Context, userID, zone string, preferredHour *int) (*domain.UserTimezoneInfo, error)
	lookupFn       func(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error)
}

func (s *stubTimezoneResolver) Resolve(ctx context.Context, userID string, evidence timezone.Evidence) (*domain.UserTimezoneInfo, bool, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, userID, evidence)
	}
	return nil, false, nil
}

func (s *stubTimezoneResolver) ManualUpdate(ctx context.Context, userID, zone string, preferredHour *int) (*domain.UserTimezoneInfo, error) {
	if s.manualUpdateFn != nil {
		return s.manualUpdateFn(ctx, userID, zone, preferredHour)
	}
	return nil, domain.ErrNotFound
}

func (s *stubTimezoneResolver) Lookup(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

type stubTimezoneStats struct {
	statsFn func(ctx context.Context) (*timezone.Stats, error)
}

func (s *stubTimezoneStats) Stats(ctx context.Context) (*timezone.Stats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return &timezone.Stats{}, nil
}

func newTimezoneTestApp(t *testing.T, resolver TimezoneResolver, stats TimezoneStatsProvider) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterTimezoneRoutes(app, resolver, stats); err != nil {
		t.Fatalf("RegisterTimezoneRoutes() error = %v", err)
	}

	return app
}
