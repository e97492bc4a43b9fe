package repository

import (
	"context"
	"errors"

	"github.com/richcast/richcast/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormTimezoneRepo struct {
	db *gorm.DB
}

func NewGormTimezoneRepo(db *gorm.DB) *GormTimezoneRepo {
	return &GormTimezoneRepo{db: db}
}

func (r *GormTimezoneRepo) Upsert(ctx context.Context, info *domain.UserTimezoneInfo) error {
	model := timezoneModelFromDomain(info)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

func (r *GormTimezoneRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error) {
	var model UserTimezoneModel
	err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return timezoneModelToDomain(&model), nil
}

func (r *GormTimezoneRepo) List(ctx context.Context) ([]domain.UserTimezoneInfo, error) {
	var models []UserTimezoneModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}

	infos := make([]domain.UserTimezoneInfo, 0, len(models))
	for i := range models {
		infos = append(infos, *timezoneModelToDomain(&models[i]))
	}
	return infos, nil
}

func (r *GormTimezoneRepo) ReplaceAll(ctx context.Context, infos []domain.UserTimezoneInfo) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&UserTimezoneModel{}).Error; err != nil {
			return err
		}
		for i := range infos {
			model := timezoneModelFromDomain(&infos[i])
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
