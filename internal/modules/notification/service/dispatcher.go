package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	preference "anoa.com/marketchat/internal/modules/preference/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	"anoa.com/marketchat/pkg/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotifyInput struct {
	UserID    uuid.UUID
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	ActionURL string
	ExpiresAt *time.Time
}

// DispatchResult carries either the stored notification or the reason it
// was skipped.
type DispatchResult struct {
	Notification *entity.Notification
	Suppressed   bool
	Reason       string
}

func suppressed(t entity.NotificationType, reason string) *DispatchResult {
	metrics.NotificationsSuppressed.WithLabelValues(string(t), reason).Inc()
	return &DispatchResult{Suppressed: true, Reason: reason}
}

func (s *notificationService) Notify(ctx context.Context, in NotifyInput) (*DispatchResult, error) {
	if in.UserID == uuid.Nil {
		return nil, apperror.Invalid("user_id", "is required")
	}
	t, ok := entity.CanonicalNotificationType(in.Type)
	if !ok {
		return nil, apperror.Invalid("type", fmt.Sprintf("unknown notification type %q", in.Type))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.Invalid("title", "must not be empty")
	}

	pref, err := s.preferences.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if off, reason := preference.Evaluate(pref, t, s.now()); off {
		s.logger.Info("notification suppressed",
			zap.String("user_id", in.UserID.String()),
			zap.String("type", string(t)),
			zap.String("reason", reason))
		return suppressed(t, reason), nil
	}

	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		e := in.ExpiresAt.UTC()
		expiresAt = &e
	}

	notification := &entity.Notification{
		UserID:    in.UserID,
		Type:      t,
		Title:     clip(title, entity.NotificationTitleMaxLen),
		Message:   in.Message,
		Data:      in.Data,
		ActionURL: in.ActionURL,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, apperror.Transient(fmt.Errorf("create notification: %w", err))
	}
	metrics.NotificationsDispatched.WithLabelValues(string(t)).Inc()

	// The row is durable; everything below is best effort.
	s.publish(ctx, realtime.UserChannel(in.UserID), realtime.EventNewNotification, notification)
	s.enqueueDeliveries(ctx, pref, notification)

	return &DispatchResult{Notification: notification}, nil
}

// enqueueDeliveries hands push and immediate email copies to the outbound
// queue according to the channel toggles. Daily and weekly email users are
// served by SendDigests.
func (s *notificationService) enqueueDeliveries(ctx context.Context, pref *entity.NotificationPreference, n *entity.Notification) {
	if s.producer == nil {
		return
	}

	var deliveries []queue.Delivery
	if pref.PushEnabled {
		deliveries = append(deliveries, toDelivery(queue.ChannelPush, n))
	}
	if pref.EmailEnabled && pref.EmailFrequency == entity.EmailImmediate {
		deliveries = append(deliveries, toDelivery(queue.ChannelEmail, n))
	}
	if len(deliveries) == 0 {
		return
	}

	if err := s.producer.Enqueue(ctx, deliveries...); err != nil {
		metrics.DeliveryEnqueueErrors.Inc()
		s.logger.Error("failed to enqueue notification deliveries",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err))
	}
}

func toDelivery(channel string, n *entity.Notification) queue.Delivery {
	return queue.Delivery{
		Channel:        channel,
		UserID:         n.UserID.String(),
		NotificationID: n.ID.String(),
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		ActionURL:      n.ActionURL,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	}
}
