package repository

import (
	"context"
	"time"

	"github.com/richcast/richcast/internal/domain"
)

// DeliveryRepository stores delivery records with their attempt history.
// Implementations return domain.ErrNotFound for missing ids and
// domain.ErrConflict when creating an id that already exists.
type DeliveryRepository interface {
	Create(ctx context.Context, record *domain.DeliveryRecord) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	Update(ctx context.Context, record *domain.DeliveryRecord) error
	ListByUser(ctx context.Context, userID string) ([]domain.DeliveryRecord, error)
	List(ctx context.Context) ([]domain.DeliveryRecord, error)
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// TimezoneRepository stores resolved per-user timezone assignments.
type TimezoneRepository interface {
	Upsert(ctx context.Context, info *domain.UserTimezoneInfo) error
	GetByUserID(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error)
	List(ctx context.Context) ([]domain.UserTimezoneInfo, error)
	ReplaceAll(ctx context.Context, infos []domain.UserTimezoneInfo) error
}
