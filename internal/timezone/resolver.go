package timezone

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/repository"
	"go.uber.org/zap"
)

// Evidence carries everything known about a user that can hint at their
// timezone. Every field is optional; the resolver evaluates whichever
// detection methods the available fields enable.
type Evidence struct {
	// ProfileTimezone is an explicit timezone-like value from the user profile
	// (IANA name, abbreviation, or location string).
	ProfileTimezone string
	Country         string
	City            string
	Region          string
	// Language is an ISO 639-1 code, optionally with a region suffix ("en-US").
	Language string
	// Messages are recent free-text messages scanned for UTC offsets and
	// timezone abbreviations.
	Messages []string
	// ActivityTimestamps are UTC instants of recent user activity. At least
	// five are required before the activity method produces a candidate.
	ActivityTimestamps []time.Time
}

type candidate struct {
	timezone   string
	method     domain.DetectionMethod
	confidence float64
}

var offsetPattern = regexp.MustCompile(`(?i)\b(?:UTC|GMT)\s*([+-]\d{1,2})(?::([0-5]\d))?\b`)

// Resolver detects user timezones from layered evidence and persists the
// winning result.
type Resolver struct {
	timezones repository.TimezoneRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewResolver(timezones repository.TimezoneRepository, logger *zap.Logger) (*Resolver, error) {
	if timezones == nil {
		return nil, fmt.Errorf("%w: timezone repository is required", domain.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		timezones: timezones,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Resolve evaluates all detection methods against the evidence, picks the
// highest-confidence candidate, persists it, and returns it. The second
// return value is false when no method produced a candidate; that is not an
// error.
func (r *Resolver) Resolve(ctx context.Context, userID string, evidence Evidence) (*domain.UserTimezoneInfo, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	candidates := r.collectCandidates(evidence)
	if len(candidates) == 0 {
		r.logger.Debug("no timezone evidence matched", zap.String("userId", userID))
		return nil, false, nil
	}

	// Stable sort keeps the method evaluation order as the tiebreaker.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})
	winner := candidates[0]

	now := r.now().UTC()
	info := &domain.UserTimezoneInfo{
		UserID:      userID,
		Timezone:    winner.timezone,
		UTCOffset:   zoneOffsetAt(winner.timezone, now),
		Method:      winner.method,
		Confidence:  winner.confidence,
		UpdatedAt:   now,
		CountryCode: strings.ToUpper(strings.TrimSpace(evidence.Country)),
		City:        strings.TrimSpace(evidence.City),
	}
	if err := info.Validate(); err != nil {
		return nil, false, err
	}
	if err := r.timezones.Upsert(ctx, info); err != nil {
		return nil, false, fmt.Errorf("persisting timezone for user %s: %w", userID, err)
	}

	r.logger.Info("timezone resolved",
		zap.String("userId", userID),
		zap.String("timezone", info.Timezone),
		zap.String("method", string(info.Method)),
		zap.Float64("confidence", info.Confidence),
	)
	return info, true, nil
}

// ManualUpdate records an explicit timezone choice by the user. It overrides
// any detected value and carries full confidence.
func (r *Resolver) ManualUpdate(ctx context.Context, userID, zone string, preferredHour *int) (*domain.UserTimezoneInfo, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	resolved := zone
	if !isKnownZone(resolved) {
		mapped, ok := lookupLocation(resolved)
		if !ok {
			return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, zone)
		}
		resolved = mapped
	}
	if preferredHour != nil && (*preferredHour < 0 || *preferredHour > 23) {
		return nil, fmt.Errorf("%w: preferred hour %d out of range", domain.ErrValidation, *preferredHour)
	}

	now := r.now().UTC()
	info := &domain.UserTimezoneInfo{
		UserID:        userID,
		Timezone:      resolved,
		UTCOffset:     zoneOffsetAt(resolved, now),
		Method:        domain.MethodManualUpdate,
		Confidence:    1.0,
		UpdatedAt:     now,
		PreferredHour: preferredHour,
	}
	if err := r.timezones.Upsert(ctx, info); err != nil {
		return nil, fmt.Errorf("persisting timezone for user %s: %w", userID, err)
	}

	r.logger.Info("timezone updated manually",
		zap.String("userId", userID),
		zap.String("timezone", resolved),
	)
	return info, nil
}

// Lookup returns the stored timezone info for a user.
func (r *Resolver) Lookup(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error) {
	return r.timezones.GetByUserID(ctx, userID)
}

func (r *Resolver) collectCandidates(evidence Evidence) []candidate {
	var candidates []candidate

	if zone, ok := r.profileCandidate(evidence.ProfileTimezone); ok {
		candidates = append(candidates, candidate{zone, domain.MethodProfileDirect, 0.95})
	}
	if zone, ok := lookupLocation(evidence.City); ok {
		candidates = append(candidates, candidate{zone, domain.MethodLocationCity, 0.8})
	}
	if zone, ok := lookupLocation(evidence.Country); ok {
		candidates = append(candidates, candidate{zone, domain.MethodLocationCountry, 0.8})
	}
	if zone, ok := lookupLocation(evidence.Region); ok {
		candidates = append(candidates, candidate{zone, domain.MethodLocationRegion, 0.8})
	}
	if zone, ok := languageCandidate(evidence.Language); ok {
		candidates = append(candidates, candidate{zone, domain.MethodLanguageInference, 0.6})
	}
	candidates = append(candidates, messageCandidates(evidence.Messages)...)
	if zone, ok := activityCandidate(evidence.ActivityTimestamps); ok {
		candidates = append(candidates, candidate{zone, domain.MethodActivityPattern, 0.7})
	}

	return candidates
}

func (r *Resolver) profileCandidate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if isKnownZone(value) {
		return value, true
	}
	return lookupLocation(value)
}

func languageCandidate(language string) (string, bool) {
	code := strings.ToLower(strings.TrimSpace(language))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	if code == "" {
		return "", false
	}
	zone, ok := languageTable[code]
	return zone, ok
}

// messageCandidates scans free text for explicit UTC/GMT offsets (0.7) and
// timezone abbreviations (0.8).
func messageCandidates(messages []string) []candidate {
	var candidates []candidate
	for _, message := range messages {
		if match := offsetPattern.FindStringSubmatch(message); match != nil {
			hours, err := strconv.Atoi(match[1])
			if err == nil {
				offset := float64(hours)
				if match[2] != "" {
					minutes, _ := strconv.Atoi(match[2])
					fraction := float64(minutes) / 60.0
					if hours < 0 {
						fraction = -fraction
					}
					offset += fraction
				}
				if zone, ok := findZoneByOffset(offset); ok {
					candidates = append(candidates, candidate{zone, domain.MethodMessageAnalysis, 0.7})
				}
			}
		}
		for _, token := range strings.FieldsFunc(message, func(r rune) bool {
			return r < 'A' || (r > 'Z' && r < 'a') || r > 'z'
		}) {
			if zone, ok := messageAbbrevTable[token]; ok {
				candidates = append(candidates, candidate{zone, domain.MethodMessageAnalysis, 0.8})
			}
		}
	}
	return candidates
}

// activityCandidate infers an offset from the peak UTC activity hour, assuming
// peak activity lands around 15:00 local. Requires at least five samples.
func activityCandidate(timestamps []time.Time) (string, bool) {
	const minSamples = 5
	const assumedPeakLocalHour = 15

	if len(timestamps) < minSamples {
		return "", false
	}

	var histogram [24]int
	for _, ts := range timestamps {
		histogram[ts.UTC().Hour()]++
	}
	peakHour, peakCount := 0, 0
	for hour, count := range histogram {
		if count > peakCount {
			peakHour, peakCount = hour, count
		}
	}

	offset := float64(assumedPeakLocalHour - peakHour)
	for offset > 12 {
		offset -= 24
	}
	for offset <= -12 {
		offset += 24
	}
	return findZoneByOffset(offset)
}
