package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusDelivered         Status = "DELIVERED"
	StatusFailed            Status = "FAILED"
	StatusRetrying          Status = "RETRYING"
	StatusPermanentlyFailed Status = "PERMANENTLY_FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDelivered, StatusFailed, StatusRetrying, StatusPermanentlyFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further attempts.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusPermanentlyFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Category represents the content category of a rich message post.
type Category string

const (
	CategoryMotivation Category = "motivation"
	CategoryNews       Category = "news"
	CategoryGreeting   Category = "greeting"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryMotivation, CategoryNews, CategoryGreeting:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Priority represents the delivery priority level.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// DeliveryRecord is the unit of tracked reliability: one planned transmission
// of composed content to one user, with its full attempt history.
type DeliveryRecord struct {
	ID          string   `gorm:"type:varchar(128);primaryKey"`
	UserID      string   `gorm:"type:varchar(64);not null"`
	Category    Category `gorm:"type:varchar(20);not null"`
	Timezone    string   `gorm:"type:varchar(64);not null"`
	ScheduledAt time.Time
	Status      Status `gorm:"type:varchar(20);not null"`

	Attempts      []DeliveryAttempt `gorm:"-"`
	TotalAttempts int               `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time

	ErrorKind        ErrorKind `gorm:"type:varchar(20)"`
	ErrorMessage     string    `gorm:"type:text"`
	RetryCount       int       `gorm:"not null;default:0"`
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

func (d *DeliveryRecord) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !d.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, d.Category)
	}
	if strings.TrimSpace(d.Timezone) == "" {
		return fmt.Errorf("%w: timezone is required", ErrValidation)
	}
	if d.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrValidation)
	}
	return nil
}

// FindAttempt returns the attempt with the given id, or nil.
func (d *DeliveryRecord) FindAttempt(attemptID string) *DeliveryAttempt {
	for i := range d.Attempts {
		if d.Attempts[i].ID == attemptID {
			return &d.Attempts[i]
		}
	}
	return nil
}

// DeliveryID derives the deterministic delivery identifier for one logical
// delivery. The scheduled time is truncated to the minute so a replanned
// schedule lands on the same id.
func DeliveryID(userID string, category Category, scheduledAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", userID, category, scheduledAt.UTC().Truncate(time.Minute).Unix())
}
