package preference

import (
	"context"
	"errors"
	"time"

	"anoa.com/marketchat/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreference, error)
	// FindOrCreate returns the user's record, inserting pref when none exists.
	// Concurrent first access resolves on the primary key.
	FindOrCreate(ctx context.Context, pref *entity.NotificationPreference) (*entity.NotificationPreference, error)
	// Modify loads the user's record under a row lock, applies fn and saves
	// the result in the same transaction, so concurrent partial updates merge.
	Modify(ctx context.Context, userID uuid.UUID, fn func(pref *entity.NotificationPreference)) (*entity.NotificationPreference, error)
	FindDigestSubscribers(ctx context.Context, frequency entity.EmailFrequency) ([]entity.NotificationPreference, error)
	UpdateLastDigestAt(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreference, error) {
	var pref entity.NotificationPreference
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *repository) FindOrCreate(ctx context.Context, pref *entity.NotificationPreference) (*entity.NotificationPreference, error) {
	existing, err := r.FindByUserID(ctx, pref.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(pref).Error; err != nil {
		return nil, err
	}

	// Re-read: a concurrent first access may have won the insert.
	return r.FindByUserID(ctx, pref.UserID)
}

func (r *repository) Modify(ctx context.Context, userID uuid.UUID, fn func(pref *entity.NotificationPreference)) (*entity.NotificationPreference, error) {
	var pref entity.NotificationPreference
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&pref).Error; err != nil {
			return err
		}

		fn(&pref)

		return tx.Model(&pref).
			Select("email_enabled", "push_enabled", "in_app_enabled", "email_frequency", "muted_until", "types", "updated_at").
			Updates(&pref).Error
	})
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *repository) FindDigestSubscribers(ctx context.Context, frequency entity.EmailFrequency) ([]entity.NotificationPreference, error) {
	var prefs []entity.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("email_enabled = ? AND email_frequency = ?", true, frequency).
		Order("user_id").
		Find(&prefs).Error
	return prefs, err
}

func (r *repository) UpdateLastDigestAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.NotificationPreference{}).
		Where("user_id = ?", userID).
		Update("last_digest_at", at).Error
}
