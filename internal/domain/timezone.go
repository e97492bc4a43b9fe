package domain

import (
	"fmt"
	"strings"
	"time"
)

// DetectionMethod tags how a user's timezone was determined.
type DetectionMethod string

const (
	MethodProfileDirect     DetectionMethod = "profile_direct"
	MethodLocationCountry   DetectionMethod = "location_country"
	MethodLocationCity      DetectionMethod = "location_city"
	MethodLocationRegion    DetectionMethod = "location_region"
	MethodLanguageInference DetectionMethod = "language_inference"
	MethodMessageAnalysis   DetectionMethod = "message_analysis"
	MethodActivityPattern   DetectionMethod = "activity_pattern"
	MethodManualUpdate      DetectionMethod = "manual_update"
)

func (m DetectionMethod) String() string { return string(m) }

func (m DetectionMethod) IsValid() bool {
	switch m {
	case MethodProfileDirect, MethodLocationCountry, MethodLocationCity, MethodLocationRegion,
		MethodLanguageInference, MethodMessageAnalysis, MethodActivityPattern, MethodManualUpdate:
		return true
	}
	return false
}

// UserTimezoneInfo holds the resolved timezone assignment for one user.
type UserTimezoneInfo struct {
	UserID        string          `gorm:"type:varchar(64);primaryKey"`
	Timezone      string          `gorm:"type:varchar(64);not null"`
	UTCOffset     float64         `gorm:"not null;default:0"`
	Method        DetectionMethod `gorm:"type:varchar(32);not null"`
	Confidence    float64         `gorm:"not null;default:0"`
	UpdatedAt     time.Time
	PreferredHour *int   `gorm:"type:int"`
	CountryCode   string `gorm:"type:varchar(8)"`
	City          string `gorm:"type:varchar(64)"`
}

func (u *UserTimezoneInfo) Validate() error {
	if strings.TrimSpace(u.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(u.Timezone) == "" {
		return fmt.Errorf("%w: timezone is required", ErrValidation)
	}
	if u.Confidence < 0.0 || u.Confidence > 1.0 {
		return fmt.Errorf("%w: confidence %f out of [0,1]", ErrValidation, u.Confidence)
	}
	if !u.Method.IsValid() {
		return fmt.Errorf("%w: invalid detection method %q", ErrValidation, u.Method)
	}
	return nil
}

// Region returns the IANA prefix before "/", e.g. "Asia" for Asia/Bangkok.
func (u *UserTimezoneInfo) Region() string {
	if idx := strings.Index(u.Timezone, "/"); idx > 0 {
		return u.Timezone[:idx]
	}
	return u.Timezone
}

// TimezoneGroup is the ephemeral aggregate of all users sharing one timezone.
// It is rebuilt on demand and never persisted.
type TimezoneGroup struct {
	Timezone        string
	UTCOffset       float64
	UserIDs         []string
	Count           int
	PreferredHour   int
	PreferredMinute int
	NextDeliveryUTC time.Time
}

// DeliverySchedule is one planned batch delivery for a timezone group.
type DeliverySchedule struct {
	Timezone     string
	DeliverAtUTC time.Time
	LocalTime    string
	UserIDs      []string
	Category     Category
	Priority     Priority
}
