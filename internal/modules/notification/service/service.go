package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/notification/dto"
	notifRepo "anoa.com/marketchat/internal/modules/notification/repository"
	preference "anoa.com/marketchat/internal/modules/preference/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	"anoa.com/marketchat/pkg/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type NotificationService interface {
	// Notify creates a notification unless the recipient's preferences
	// suppress it. Suppression is reported in the result, not as an error.
	Notify(ctx context.Context, in NotifyInput) (*DispatchResult, error)
	NotifyNewMessage(ctx context.Context, in NewMessageInput) (*DispatchResult, error)
	NotifyListingEvent(ctx context.Context, in ListingEventInput) (*DispatchResult, error)
	NotifyListingFavorited(ctx context.Context, in ListingFavoritedInput) (*DispatchResult, error)

	GetNotifications(ctx context.Context, userID uuid.UUID, filter dto.NotificationFilter) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)

	// SendDigests enqueues one email digest per subscriber of frequency and
	// returns how many were sent.
	SendDigests(ctx context.Context, frequency entity.EmailFrequency) (int, error)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	preferences preference.Service
	broker      realtime.Broker
	producer    queue.Producer
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotificationService wires the dispatcher. producer may be nil, in which
// case only in-app notifications are produced.
func NewNotificationService(repo notifRepo.NotificationRepository, preferences preference.Service, broker realtime.Broker, producer queue.Producer, logger *zap.Logger) NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{
		repo:        repo,
		preferences: preferences,
		broker:      broker,
		producer:    producer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, filter dto.NotificationFilter) (*dto.NotificationListResponse, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if filter.Offset < 0 {
		return nil, apperror.Invalid("offset", "must not be negative")
	}

	includeRead := true
	if filter.IncludeRead != nil {
		includeRead = *filter.IncludeRead
	}

	q := notifRepo.ListFilter{
		IncludeRead:    includeRead,
		IncludeExpired: filter.IncludeExpired,
		Limit:          limit,
		Offset:         filter.Offset,
		Now:            s.now(),
	}
	if filter.Type != "" {
		t, ok := entity.CanonicalNotificationType(filter.Type)
		if !ok {
			return nil, apperror.Invalid("type", fmt.Sprintf("unknown notification type %q", filter.Type))
		}
		q.Type = &t
	}

	items, total, err := s.repo.List(ctx, userID, q)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("list notifications: %w", err))
	}
	if items == nil {
		items = []entity.Notification{}
	}

	return &dto.NotificationListResponse{
		Items:   items,
		Count:   total,
		HasMore: int64(filter.Offset+len(items)) < total,
	}, nil
}

// ownedNotification loads id and checks that userID is its recipient.
func (s *notificationService) ownedNotification(ctx context.Context, userID, id uuid.UUID) (*entity.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.Transient(fmt.Errorf("find notification: %w", err))
	}
	if n.UserID != userID {
		return nil, apperror.ErrForbidden
	}
	return n, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.ownedNotification(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if _, err := s.repo.MarkAsRead(ctx, id, userID, s.now()); err != nil {
		return apperror.Transient(fmt.Errorf("mark notification read: %w", err))
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID, s.now())
	if err != nil {
		return 0, apperror.Transient(fmt.Errorf("mark all notifications read: %w", err))
	}
	return n, nil
}

func (s *notificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.ownedNotification(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.repo.Delete(ctx, id, userID); err != nil {
		return apperror.Transient(fmt.Errorf("delete notification: %w", err))
	}
	return nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.CountUnread(ctx, userID, s.now())
	if err != nil {
		return 0, apperror.Transient(fmt.Errorf("count unread notifications: %w", err))
	}
	return count, nil
}

func (s *notificationService) publish(ctx context.Context, channel string, t realtime.EventType, payload any) {
	if s.broker == nil {
		return
	}
	evt, err := realtime.NewEvent(t, payload)
	if err == nil {
		err = s.broker.Publish(ctx, channel, evt)
	}
	if err != nil {
		metrics.FanoutPublishErrors.WithLabelValues(string(t)).Inc()
		s.logger.Warn("realtime publish failed",
			zap.String("channel", channel),
			zap.String("event", string(t)),
			zap.Error(err))
	}
}
