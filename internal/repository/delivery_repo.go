package repository

import (
	"context"
	"errors"
	"time"

	"github.com/richcast/richcast/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, record *domain.DeliveryRecord) error {
	model := deliveryModelFromDomain(record)
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if record != nil {
		record.CreatedAt = model.CreatedAt
		record.UpdatedAt = model.UpdatedAt
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var model DeliveryRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record := deliveryModelToDomain(&model)
	attempts, err := r.attemptsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Attempts = attempts
	return record, nil
}

func (r *GormDeliveryRepo) Update(ctx context.Context, record *domain.DeliveryRecord) error {
	if record == nil {
		return domain.ErrNotFound
	}

	model := deliveryModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ?", record.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}

	for i := range record.Attempts {
		attemptModel := attemptModelFromDomain(&record.Attempts[i])
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(attemptModel).Error
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *GormDeliveryRepo) ListByUser(ctx context.Context, userID string) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.toDomainWithAttempts(ctx, models)
}

func (r *GormDeliveryRepo) List(ctx context.Context) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormDeliveryRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	query := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusRetrying, now).
		Order("next_retry_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormDeliveryRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	terminal := []domain.Status{domain.StatusDelivered, domain.StatusPermanentlyFailed}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("status IN ? AND created_at < ?", terminal, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := r.db.WithContext(ctx).
		Where("delivery_id IN ?", ids).
		Delete(&DeliveryAttemptModel{}).Error; err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&DeliveryRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (r *GormDeliveryRepo) attemptsFor(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}
	return attempts, nil
}

func (r *GormDeliveryRepo) toDomainWithAttempts(ctx context.Context, models []DeliveryRecordModel) ([]domain.DeliveryRecord, error) {
	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		record := deliveryModelToDomain(&models[i])
		attempts, err := r.attemptsFor(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		record.Attempts = attempts
		records = append(records, *record)
	}
	return records, nil
}
