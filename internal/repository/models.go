package repository

import (
	"time"

	"github.com/richcast/richcast/internal/domain"
)

// DeliveryRecordModel is the persistence model for the delivery_records table.
type DeliveryRecordModel struct {
	ID          string          `gorm:"type:varchar(128);primaryKey"`
	UserID      string          `gorm:"type:varchar(64);not null"`
	Category    domain.Category `gorm:"type:varchar(20);not null"`
	Timezone    string          `gorm:"type:varchar(64);not null"`
	ScheduledAt time.Time
	Status      domain.Status `gorm:"type:varchar(20);not null"`

	TotalAttempts int `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time

	ErrorKind        domain.ErrorKind `gorm:"type:varchar(20)"`
	ErrorMessage     string           `gorm:"type:text"`
	RetryCount       int              `gorm:"not null;default:0"`
	NextRetryAt      *time.Time
	PermanentFailure bool `gorm:"not null;default:false"`

	TemplateID   string `gorm:"type:varchar(64)"`
	ImagePath    string `gorm:"type:text"`
	ContentTitle string `gorm:"type:text"`

	DeliveryTimeMs    int64 `gorm:"not null;default:0"`
	TotalProcessingMs int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeliveryRecordModel) TableName() string {
	return "delivery_records"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	DeliveryID    string `gorm:"type:varchar(128);not null"`
	AttemptNumber int    `gorm:"not null"`
	StartedAt     time.Time
	Status        domain.Status    `gorm:"type:varchar(20);not null"`
	ErrorKind     domain.ErrorKind `gorm:"type:varchar(20)"`
	ErrorMessage  string           `gorm:"type:text"`
	ResponseMs    int64            `gorm:"not null;default:0"`
	RetryAfterSec int64            `gorm:"not null;default:0"`
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// UserTimezoneModel is the persistence model for user_timezones.
type UserTimezoneModel struct {
	UserID        string                 `gorm:"type:varchar(64);primaryKey"`
	Timezone      string                 `gorm:"type:varchar(64);not null"`
	UTCOffset     float64                `gorm:"not null;default:0"`
	Method        domain.DetectionMethod `gorm:"type:varchar(32);not null"`
	Confidence    float64                `gorm:"not null;default:0"`
	UpdatedAt     time.Time
	PreferredHour *int   `gorm:"type:int"`
	CountryCode   string `gorm:"type:varchar(8)"`
	City          string `gorm:"type:varchar(64)"`
}

func (UserTimezoneModel) TableName() string {
	return "user_timezones"
}

func deliveryModelFromDomain(d *domain.DeliveryRecord) *DeliveryRecordModel {
	if d == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:                d.ID,
		UserID:            d.UserID,
		Category:          d.Category,
		Timezone:          d.Timezone,
		ScheduledAt:       d.ScheduledAt,
		Status:            d.Status,
		TotalAttempts:     d.TotalAttempts,
		LastAttemptAt:     d.LastAttemptAt,
		DeliveredAt:       d.DeliveredAt,
		ErrorKind:         d.ErrorKind,
		ErrorMessage:      d.ErrorMessage,
		RetryCount:        d.RetryCount,
		NextRetryAt:       d.NextRetryAt,
		PermanentFailure:  d.PermanentFailure,
		TemplateID:        d.TemplateID,
		ImagePath:         d.ImagePath,
		ContentTitle:      d.ContentTitle,
		DeliveryTimeMs:    d.DeliveryTimeMs,
		TotalProcessingMs: d.TotalProcessingMs,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:                m.ID,
		UserID:            m.UserID,
		Category:          m.Category,
		Timezone:          m.Timezone,
		ScheduledAt:       m.ScheduledAt,
		Status:            m.Status,
		TotalAttempts:     m.TotalAttempts,
		LastAttemptAt:     m.LastAttemptAt,
		DeliveredAt:       m.DeliveredAt,
		ErrorKind:         m.ErrorKind,
		ErrorMessage:      m.ErrorMessage,
		RetryCount:        m.RetryCount,
		NextRetryAt:       m.NextRetryAt,
		PermanentFailure:  m.PermanentFailure,
		TemplateID:        m.TemplateID,
		ImagePath:         m.ImagePath,
		ContentTitle:      m.ContentTitle,
		DeliveryTimeMs:    m.DeliveryTimeMs,
		TotalProcessingMs: m.TotalProcessingMs,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		DeliveryID:    a.DeliveryID,
		AttemptNumber: a.AttemptNumber,
		StartedAt:     a.StartedAt,
		Status:        a.Status,
		ErrorKind:     a.ErrorKind,
		ErrorMessage:  a.ErrorMessage,
		ResponseMs:    a.ResponseMs,
		RetryAfterSec: a.RetryAfterSec,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		DeliveryID:    m.DeliveryID,
		AttemptNumber: m.AttemptNumber,
		StartedAt:     m.StartedAt,
		Status:        m.Status,
		ErrorKind:     m.ErrorKind,
		ErrorMessage:  m.ErrorMessage,
		ResponseMs:    m.ResponseMs,
		RetryAfterSec: m.RetryAfterSec,
	}
}

func timezoneModelFromDomain(u *domain.UserTimezoneInfo) *UserTimezoneModel {
	if u == nil {
		return nil
	}

	return &UserTimezoneModel{
		UserID:        u.UserID,
		Timezone:      u.Timezone,
		UTCOffset:     u.UTCOffset,
		Method:        u.Method,
		Confidence:    u.Confidence,
		UpdatedAt:     u.UpdatedAt,
		PreferredHour: u.PreferredHour,
		CountryCode:   u.CountryCode,
		City:          u.City,
	}
}

func timezoneModelToDomain(m *UserTimezoneModel) *domain.UserTimezoneInfo {
	if m == nil {
		return nil
	}

	return &domain.UserTimezoneInfo{
		UserID:        m.UserID,
		Timezone:      m.Timezone,
		UTCOffset:     m.UTCOffset,
		Method:        m.Method,
		Confidence:    m.Confidence,
		UpdatedAt:     m.UpdatedAt,
		PreferredHour: m.PreferredHour,
		CountryCode:   m.CountryCode,
		City:          m.City,
	}
}
