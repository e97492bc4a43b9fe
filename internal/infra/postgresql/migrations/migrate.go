package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/richcast/richcast/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_delivery_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryRecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_deliveries_status_category_created ON delivery_records (status, category, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_deliveries_user_id ON delivery_records (user_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON delivery_records (next_retry_at) WHERE status = 'RETRYING'`,
					`CREATE INDEX IF NOT EXISTS idx_deliveries_scheduled_at ON delivery_records (scheduled_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryRecordModel{})
			},
		},
		{
			ID: "000002_create_delivery_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_delivery_id ON delivery_attempts (delivery_id, attempt_number)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
			},
		},
		{
			ID: "000003_create_user_timezones",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.UserTimezoneModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_user_timezones_timezone ON user_timezones (timezone)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.UserTimezoneModel{})
			},
		},
	})

	return m.Migrate()
}
