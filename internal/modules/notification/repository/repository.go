package repository

import (
	"context"
	"time"

	"anoa.com/marketchat/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilter narrows a user's notification listing. Now decides which rows
// count as expired.
type ListFilter struct {
	Type           *entity.NotificationType
	IncludeRead    bool
	IncludeExpired bool
	Limit          int
	Offset         int
	Now            time.Time
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]entity.Notification, int64, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// FindUnreadSince returns unread, unexpired notifications created after
	// since (all of them when since is nil), oldest first.
	FindUnreadSince(ctx context.Context, userID uuid.UUID, since *time.Time, now time.Time, limit int) ([]entity.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	var notification entity.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func notExpired(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("(expires_at IS NULL OR expires_at >= ?)", now)
}

func (r *notificationRepository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]entity.Notification, int64, error) {
	var notifications []entity.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Notification{}).Where("user_id = ?", userID)

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if !filter.IncludeRead {
		query = query.Where("is_read = ?", false)
	}
	if !filter.IncludeExpired {
		query = notExpired(query, filter.Now)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at desc").
		Order("id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&notifications).Error
	return notifications, total, err
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&entity.Notification{})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	err := notExpired(query, now).Count(&count).Error
	return count, err
}

func (r *notificationRepository) FindUnreadSince(ctx context.Context, userID uuid.UUID, since *time.Time, now time.Time, limit int) ([]entity.Notification, error) {
	var notifications []entity.Notification
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false)
	if since != nil {
		query = query.Where("created_at > ?", *since)
	}
	err := notExpired(query, now).
		Order("created_at asc").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
