package bootstrap

import (
	"anoa.com/marketchat/internal/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate creates the tables this service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.ChatThread{},
		&entity.Message{},
		&entity.MessageIdempotencyKey{},
		&entity.Notification{},
		&entity.NotificationPreference{},
	)
}

// MigrateListings creates the catalog's listings table. Production reads the
// catalog's own table; local setups without the catalog call this instead.
func MigrateListings(db *gorm.DB) error {
	return db.AutoMigrate(&entity.Listing{})
}

// SeedDemoListings inserts a few listings for local development. Existing
// rows are left untouched.
func SeedDemoListings(db *gorm.DB, logger *zap.Logger) error {
	owner := uuid.MustParse("0190f1d2-0000-7000-8000-000000000001")
	demo := []entity.Listing{
		{ID: uuid.MustParse("0190f1d2-0000-7000-8000-0000000000a1"), OwnerID: owner, Title: "Road bike, 54cm frame", Status: "active"},
		{ID: uuid.MustParse("0190f1d2-0000-7000-8000-0000000000a2"), OwnerID: owner, Title: "Oak dining table", Status: "active"},
		{ID: uuid.MustParse("0190f1d2-0000-7000-8000-0000000000a3"), OwnerID: owner, Title: "Film camera with 50mm lens", Status: "pending"},
	}

	for _, listing := range demo {
		var count int64
		if err := db.Model(&entity.Listing{}).
			Where("id = ?", listing.ID).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&listing).Error; err != nil {
				return err
			}
			logger.Info("seeded demo listing", zap.String("id", listing.ID.String()), zap.String("title", listing.Title))
		}
	}

	return nil
}
