package service

import (
	"context"
	"fmt"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/pkg/apperror"
	"anoa.com/marketchat/pkg/queue"
	"go.uber.org/zap"
)

const digestLimit = 50

func (s *notificationService) SendDigests(ctx context.Context, frequency entity.EmailFrequency) (int, error) {
	if frequency != entity.EmailDaily && frequency != entity.EmailWeekly {
		return 0, apperror.Invalid("email_frequency", "digests are daily or weekly")
	}
	if s.producer == nil {
		return 0, nil
	}

	subscribers, err := s.preferences.DigestSubscribers(ctx, frequency)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, pref := range subscribers {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		now := s.now()
		items, err := s.repo.FindUnreadSince(ctx, pref.UserID, pref.LastDigestAt, now, digestLimit)
		if err != nil {
			return sent, apperror.Transient(fmt.Errorf("load digest for %s: %w", pref.UserID, err))
		}
		if len(items) == 0 {
			continue
		}

		delivery := queue.Delivery{
			Channel:   queue.ChannelEmail,
			UserID:    pref.UserID.String(),
			Type:      "digest_" + string(frequency),
			Title:     fmt.Sprintf("You have %d unread notifications", len(items)),
			CreatedAt: now,
		}
		for _, n := range items {
			delivery.Digest = append(delivery.Digest, queue.DigestItem{
				NotificationID: n.ID.String(),
				Type:           string(n.Type),
				Title:          n.Title,
				Message:        n.Message,
				ActionURL:      n.ActionURL,
				CreatedAt:      n.CreatedAt,
			})
		}

		if err := s.producer.Enqueue(ctx, delivery); err != nil {
			metrics.DeliveryEnqueueErrors.Inc()
			s.logger.Error("failed to enqueue digest",
				zap.String("user_id", pref.UserID.String()),
				zap.Error(err))
			continue
		}
		if err := s.preferences.MarkDigestSent(ctx, pref.UserID, now); err != nil {
			return sent, err
		}
		sent++
	}

	return sent, nil
}
