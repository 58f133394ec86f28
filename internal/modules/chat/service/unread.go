package chat

import (
	"context"
	"fmt"

	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
)

// Unread counts are computed from the message table on every call; there is
// no cached counter to drift.

func (s *service) UnreadCountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.CountUnreadForUser(ctx, userID)
	if err != nil {
		return 0, apperror.Transient(fmt.Errorf("count unread: %w", err))
	}
	return count, nil
}

func (s *service) ThreadHasUnread(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	thread, err := s.Participant(ctx, threadID, userID)
	if err != nil {
		return false, err
	}
	count, err := s.repo.CountUnreadInThread(ctx, thread.ID, userID)
	if err != nil {
		return false, apperror.Transient(fmt.Errorf("count unread: %w", err))
	}
	return count > 0, nil
}
