package timezone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/repository"
)

func TestResolverResolveMethods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		evidence       Evidence
		wantTimezone   string
		wantMethod     domain.DetectionMethod
		wantConfidence float64
	}{
		{
			name:           "profile iana name",
			evidence:       Evidence{ProfileTimezone: "Asia/Bangkok"},
			wantTimezone:   "Asia/Bangkok",
			wantMethod:     domain.MethodProfileDirect,
			wantConfidence: 0.95,
		},
		{
			name:           "profile abbreviation",
			evidence:       Evidence{ProfileTimezone: "JST"},
			wantTimezone:   "Asia/Tokyo",
			wantMethod:     domain.MethodProfileDirect,
			wantConfidence: 0.95,
		},
		{
			name:           "country lookup",
			evidence:       Evidence{Country: "Thailand"},
			wantTimezone:   "Asia/Bangkok",
			wantMethod:     domain.MethodLocationCountry,
			wantConfidence: 0.8,
		},
		{
			name:           "city lookup",
			evidence:       Evidence{City: "Tokyo"},
			wantTimezone:   "Asia/Tokyo",
			wantMethod:     domain.MethodLocationCity,
			wantConfidence: 0.8,
		},
		{
			name:           "language inference",
			evidence:       Evidence{Language: "th"},
			wantTimezone:   "Asia/Bangkok",
			wantMethod:     domain.MethodLanguageInference,
			wantConfidence: 0.6,
		},
		{
			name:           "language with region suffix",
			evidence:       Evidence{Language: "ja-JP"},
			wantTimezone:   "Asia/Tokyo",
			wantMethod:     domain.MethodLanguageInference,
			wantConfidence: 0.6,
		},
		{
			name:           "message utc offset",
			evidence:       Evidence{Messages: []string{"my day starts at UTC+7 usually"}},
			wantTimezone:   "Asia/Bangkok",
			wantMethod:     domain.MethodMessageAnalysis,
			wantConfidence: 0.7,
		},
		{
			name:           "message abbreviation",
			evidence:       Evidence{Messages: []string{"call me at 3pm PST"}},
			wantTimezone:   "America/Los_Angeles",
			wantMethod:     domain.MethodMessageAnalysis,
			wantConfidence: 0.8,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver, err := NewResolver(repository.NewMemoryTimezoneRepo(), nil)
			if err != nil {
				t.Fatalf("NewResolver() error = %v", err)
			}

			info, ok, err := resolver.Resolve(context.Background(), "u1", tt.evidence)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !ok {
				t.Fatal("Resolve() found no candidate")
			}
			if info.Timezone != tt.wantTimezone {
				t.Errorf("Timezone = %s, want %s", info.Timezone, tt.wantTimezone)
			}
			if info.Method != tt.wantMethod {
				t.Errorf("Method = %s, want %s", info.Method, tt.wantMethod)
			}
			if info.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", info.Confidence, tt.wantConfidence)
			}
			if info.Confidence < 0 || info.Confidence > 1 {
				t.Errorf("Confidence %v out of [0,1]", info.Confidence)
			}
		})
	}
}

func TestResolverProfileDominatesWeakerEvidence(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(repository.NewMemoryTimezoneRepo(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	// Conflicting evidence across every method: the profile wins.
	info, ok, err := resolver.Resolve(context.Background(), "u1", Evidence{
		ProfileTimezone: "Asia/Bangkok",
		Country:         "Germany",
		City:            "Berlin",
		Language:        "de",
		Messages:        []string{"usually around CET here"},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok {
		t.Fatal("Resolve() found no candidate")
	}
	if info.Method != domain.MethodProfileDirect {
		t.Fatalf("Method = %s, want profile_direct", info.Method)
	}
	if info.Timezone != "Asia/Bangkok" {
		t.Fatalf("Timezone = %s, want Asia/Bangkok", info.Timezone)
	}
	if info.Confidence < 0.9 {
		t.Fatalf("Confidence = %v, want >= 0.9 for profile evidence", info.Confidence)
	}
}

func TestResolverNoEvidence(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(repository.NewMemoryTimezoneRepo(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	info, ok, err := resolver.Resolve(context.Background(), "u1", Evidence{
		Country:  "Atlantis",
		Language: "xx",
		Messages: []string{"hello there"},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok || info != nil {
		t.Fatalf("Resolve() = (%v, %v), want no result", info, ok)
	}
}

func TestResolverActivityPattern(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(repository.NewMemoryTimezoneRepo(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	// Peak activity at 08:00 UTC implies roughly UTC+7 when local peak is
	// assumed at 15:00.
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var samples []time.Time
	for i := 0; i < 6; i++ {
		samples = append(samples, base.AddDate(0, 0, i))
	}
	samples = append(samples, base.AddDate(0, 0, 1).Add(3*time.Hour))

	info, ok, err := resolver.Resolve(context.Background(), "u1", Evidence{ActivityTimestamps: samples})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok {
		t.Fatal("Resolve() found no candidate")
	}
	if info.Method != domain.MethodActivityPattern {
		t.Fatalf("Method = %s, want activity_pattern", info.Method)
	}
	if got := zoneStandardOffsets[info.Timezone]; got < 6 || got > 8 {
		t.Fatalf("Timezone = %s (offset %v), want offset near +7", info.Timezone, got)
	}
}

func TestResolverActivityNeedsEnoughSamples(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(repository.NewMemoryTimezoneRepo(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	samples := []time.Time{
		time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	_, ok, err := resolver.Resolve(context.Background(), "u1", Evidence{ActivityTimestamps: samples})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok {
		t.Fatal("two samples should not produce an activity candidate")
	}
}

func TestResolverManualUpdate(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryTimezoneRepo()
	resolver, err := NewResolver(repo, nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	ctx := context.Background()

	hour := 20
	info, err := resolver.ManualUpdate(ctx, "u1", "Asia/Tokyo", &hour)
	if err != nil {
		t.Fatalf("ManualUpdate() error = %v", err)
	}
	if info.Method != domain.MethodManualUpdate || info.Confidence != 1.0 {
		t.Fatalf("got method=%s confidence=%v, want manual_update at 1.0", info.Method, info.Confidence)
	}
	if info.PreferredHour == nil || *info.PreferredHour != 20 {
		t.Fatalf("PreferredHour = %v, want 20", info.PreferredHour)
	}

	stored, err := repo.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByUserID() error = %v", err)
	}
	if stored.Timezone != "Asia/Tokyo" {
		t.Fatalf("stored timezone = %s, want Asia/Tokyo", stored.Timezone)
	}

	if _, err := resolver.ManualUpdate(ctx, "u1", "Nowhere/Unknown", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ManualUpdate() unknown zone error = %v, want ErrValidation", err)
	}
}

func TestFindZoneByOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		offset   float64
		wantZone string
		wantOK   bool
	}{
		{"exact bangkok", 7, "Asia/Bangkok", true},
		{"half hour india", 5.5, "Asia/Kolkata", true},
		{"within tolerance", 6.5, "Asia/Bangkok", true},
		{"no zone in range", -10.5, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			zone, ok := findZoneByOffset(tt.offset)
			if ok != tt.wantOK {
				t.Fatalf("findZoneByOffset(%v) ok = %v, want %v", tt.offset, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			distance := tt.offset - zoneStandardOffsets[zone]
			if distance < 0 {
				distance = -distance
			}
			if distance > 1.0 {
				t.Fatalf("zone %s is %.1fh away from requested offset", zone, distance)
			}
			if tt.wantZone != "" && zone != tt.wantZone {
				t.Fatalf("findZoneByOffset(%v) = %s, want %s", tt.offset, zone, tt.wantZone)
			}
		})
	}
}
