package domain

import "time"

// DeliveryAttempt records a single try at executing a delivery. Once
// finalized with an outcome it is never mutated again.
type DeliveryAttempt struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	DeliveryID    string `gorm:"type:varchar(128);not null"`
	AttemptNumber int    `gorm:"not null"`
	StartedAt     time.Time
	Status        Status    `gorm:"type:varchar(20);not null"`
	ErrorKind     ErrorKind `gorm:"type:varchar(20)"`
	ErrorMessage  string    `gorm:"type:text"`
	ResponseMs    int64     `gorm:"not null;default:0"`
	RetryAfterSec int64     `gorm:"not null;default:0"`
}
