package chat

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/chat/dto"
	repo "anoa.com/marketchat/internal/modules/chat/repository"
	notification "anoa.com/marketchat/internal/modules/notification/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxContentRunes = 4000
	MaxClientKeyLen = 64
)

// cleanContent strips markup and surrounding whitespace. The strict policy
// escapes entities, so they are unescaped again for storage.
func (s *service) cleanContent(content string) string {
	sanitized := s.sanitizer.Sanitize(content)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

func (s *service) AppendMessage(ctx context.Context, threadID, senderID uuid.UUID, content, idempotencyKey string) (*entity.Message, error) {
	content = s.cleanContent(content)
	if content == "" {
		return nil, apperror.Invalid("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return nil, apperror.Invalid("content", fmt.Sprintf("must be at most %d characters", MaxContentRunes))
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > MaxClientKeyLen {
		return nil, apperror.Invalid("client_message_id", fmt.Sprintf("must be at most %d characters", MaxClientKeyLen))
	}

	thread, err := s.Participant(ctx, threadID, senderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if idempotencyKey != "" {
		prior, err := s.repo.FindIdempotentMessage(ctx, senderID, thread.ID, idempotencyKey, now)
		if err == nil {
			return replay(prior, content)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Transient(fmt.Errorf("find idempotency key: %w", err))
		}
	}

	msg := &entity.Message{
		ThreadID:  thread.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}
	var key *entity.MessageIdempotencyKey
	if idempotencyKey != "" {
		key = &entity.MessageIdempotencyKey{
			SenderID:  senderID,
			ThreadID:  thread.ID,
			Key:       idempotencyKey,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.IdempotencyWindow),
		}
	}

	if err := s.repo.AppendMessage(ctx, msg, key); err != nil {
		if errors.Is(err, repo.ErrIdempotencyConflict) {
			// A concurrent retry with the same key won; hand back its message.
			prior, findErr := s.repo.FindIdempotentMessage(ctx, senderID, thread.ID, idempotencyKey, now)
			if findErr != nil {
				return nil, apperror.Transient(fmt.Errorf("reload idempotent message: %w", findErr))
			}
			return replay(prior, content)
		}
		metrics.MessagesAppended.WithLabelValues("error").Inc()
		return nil, apperror.Transient(fmt.Errorf("append message: %w", err))
	}
	metrics.MessagesAppended.WithLabelValues("created").Inc()

	s.afterAppend(ctx, thread, msg)
	return msg, nil
}

// replay answers a retried send with the message its key already produced.
// A key reused for different content is a client bug, not a retry.
func replay(prior *entity.Message, content string) (*entity.Message, error) {
	if prior.Content != content {
		metrics.MessagesAppended.WithLabelValues("conflict").Inc()
		return nil, apperror.Conflict("client_message_id was already used for a different message")
	}
	metrics.MessagesAppended.WithLabelValues("replayed").Inc()
	return prior, nil
}

// afterAppend runs the side effects of a committed message. None of them
// can fail the send.
func (s *service) afterAppend(ctx context.Context, thread *entity.ChatThread, msg *entity.Message) {
	s.publish(ctx, realtime.ThreadChannel(thread.ID), realtime.EventNewMessage, msg)

	update := threadUpdate{
		ThreadID:      thread.ID,
		Reason:        "new_message",
		LastMessageAt: &msg.CreatedAt,
	}
	s.publish(ctx, realtime.UserChannel(thread.PartyAID), realtime.EventThreadUpdated, update)
	s.publish(ctx, realtime.UserChannel(thread.PartyBID), realtime.EventThreadUpdated, update)

	var listingTitle string
	if listing, err := s.listings.FindByID(ctx, thread.ListingID); err == nil {
		listingTitle = listing.Title
	}

	if s.notifier != nil {
		_, err := s.notifier.NotifyNewMessage(ctx, notification.NewMessageInput{
			RecipientID:  thread.OtherParty(msg.SenderID),
			SenderID:     msg.SenderID,
			ThreadID:     thread.ID,
			ListingID:    thread.ListingID,
			ListingTitle: listingTitle,
			MessageID:    msg.ID,
			Content:      msg.Content,
		})
		if err != nil {
			s.logger.Warn("new message notification failed",
				zap.String("thread_id", thread.ID.String()),
				zap.Uint64("message_id", msg.ID),
				zap.Error(err))
		}
	}

	if s.search != nil {
		if err := s.search.IndexMessage(ctx, thread, msg); err != nil {
			s.logger.Warn("failed to index message",
				zap.Uint64("message_id", msg.ID),
				zap.Error(err))
		}
	}
}

func (s *service) ListMessages(ctx context.Context, threadID, requesterID uuid.UUID, query dto.MessageQuery) ([]entity.Message, error) {
	thread, err := s.Participant(ctx, threadID, requesterID)
	if err != nil {
		return nil, err
	}

	if query.AfterID > 0 {
		if _, err := s.repo.FindMessageInThread(ctx, thread.ID, query.AfterID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.Invalid("after_id", "does not belong to this thread")
			}
			return nil, apperror.Transient(fmt.Errorf("find cursor message: %w", err))
		}
	}

	if _, err := s.markRead(ctx, thread, requesterID); err != nil {
		return nil, err
	}

	messages, err := s.repo.ListMessages(ctx, thread.ID, query.AfterID, query.Limit)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("list messages: %w", err))
	}
	if messages == nil {
		messages = []entity.Message{}
	}
	return messages, nil
}

func (s *service) MarkThreadRead(ctx context.Context, threadID, requesterID uuid.UUID) (int64, error) {
	thread, err := s.Participant(ctx, threadID, requesterID)
	if err != nil {
		return 0, err
	}
	return s.markRead(ctx, thread, requesterID)
}

func (s *service) markRead(ctx context.Context, thread *entity.ChatThread, readerID uuid.UUID) (int64, error) {
	updated, err := s.repo.MarkThreadRead(ctx, thread.ID, readerID, s.now())
	if err != nil {
		return 0, apperror.Transient(fmt.Errorf("mark thread read: %w", err))
	}

	if updated > 0 {
		reader := readerID
		s.publish(ctx, realtime.ThreadChannel(thread.ID), realtime.EventThreadUpdated, threadUpdate{
			ThreadID:  thread.ID,
			Reason:    "read",
			ReaderID:  &reader,
			ReadCount: updated,
		})
	}
	return updated, nil
}

func (s *service) PurgeExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredIdempotencyKeys(ctx, s.now())
	if err != nil {
		return 0, apperror.Transient(fmt.Errorf("purge idempotency keys: %w", err))
	}
	return n, nil
}
