package chat

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/chat/dto"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	commonDto "anoa.com/marketchat/pkg/dto"
	"anoa.com/marketchat/pkg/ratelimiter"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const scopeCreateThread = "create_chat_thread"

func (s *service) CreateOrGetThread(ctx context.Context, listingID, requesterID, otherPartyID uuid.UUID) (*entity.ChatThread, bool, error) {
	if requesterID == uuid.Nil {
		return nil, false, apperror.ErrUnauthorized
	}
	if otherPartyID == uuid.Nil {
		return nil, false, apperror.Invalid("other_party_id", "is required")
	}
	if otherPartyID == requesterID {
		return nil, false, apperror.Invalid("other_party_id", "cannot start a conversation with yourself")
	}

	exists, err := s.listings.Exists(ctx, listingID)
	if err != nil {
		return nil, false, apperror.Transient(fmt.Errorf("check listing: %w", err))
	}
	if !exists {
		return nil, false, apperror.ErrNotFound
	}

	// Fast path. The unique pair index below is what actually guarantees a
	// single thread.
	thread, err := s.repo.FindThreadByPair(ctx, listingID, requesterID, otherPartyID)
	if err == nil {
		return thread, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperror.Transient(fmt.Errorf("find thread: %w", err))
	}

	rollback, err := s.checkCreateThreadRateLimit(ctx, requesterID)
	if err != nil {
		return nil, false, err
	}

	thread = &entity.ChatThread{
		ListingID:   listingID,
		PartyAID:    requesterID,
		PartyBID:    otherPartyID,
		InitiatorID: requesterID,
		CreatedAt:   s.now(),
	}
	created, err := s.repo.CreateThreadIfAbsent(ctx, thread)
	if err != nil {
		rollback()
		return nil, false, apperror.Transient(fmt.Errorf("create thread: %w", err))
	}

	if !created {
		// Lost the race against the other party's first contact.
		rollback()
		thread, err = s.repo.FindThreadByPair(ctx, listingID, requesterID, otherPartyID)
		if err != nil {
			return nil, false, apperror.Transient(fmt.Errorf("reload thread: %w", err))
		}
		return thread, false, nil
	}

	metrics.ThreadsCreated.Inc()
	s.publish(ctx, realtime.UserChannel(otherPartyID), realtime.EventThreadUpdated, threadUpdate{
		ThreadID: thread.ID,
		Reason:   "created",
	})
	return thread, true, nil
}

// checkCreateThreadRateLimit claims the per-user cooldown and returns a
// function that releases it again if the thread ends up not being created.
func (s *service) checkCreateThreadRateLimit(ctx context.Context, userID uuid.UUID) (func(), error) {
	limit := s.opts.ThreadRateLimit
	allowed, err := ratelimiter.CheckAndSetRateLimit(ctx, s.redisClient, userID, scopeCreateThread, limit)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("failed to check rate limit: %w", err))
	}
	if !allowed {
		ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.redisClient, userID, scopeCreateThread)
		return nil, &ratelimiter.RateLimitError{
			Message:    fmt.Sprintf("you can start a new conversation every %.0f seconds. Please wait %.0f seconds", limit.Seconds(), ttl.Seconds()),
			RetryAfter: ttl,
		}
	}

	cleanup := func() {
		_ = ratelimiter.ClearRateLimit(ctx, s.redisClient, userID, scopeCreateThread)
	}
	return cleanup, nil
}

func (s *service) GetThread(ctx context.Context, threadID, requesterID uuid.UUID) (*dto.ThreadResponse, error) {
	thread, err := s.Participant(ctx, threadID, requesterID)
	if err != nil {
		return nil, err
	}

	unread, err := s.repo.CountUnreadInThread(ctx, thread.ID, requesterID)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("count unread: %w", err))
	}

	resp := s.buildThreadResponse(ctx, *thread, requesterID, unread)
	return &resp, nil
}

func (s *service) ListThreads(ctx context.Context, userID uuid.UUID, page, limit int) (*dto.ThreadListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	threads, total, err := s.repo.ListThreadsForUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("list threads: %w", err))
	}

	ids := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}
	unread, err := s.repo.CountUnreadByThread(ctx, userID, ids)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("count unread: %w", err))
	}

	data := make([]dto.ThreadResponse, 0, len(threads))
	for _, t := range threads {
		data = append(data, s.buildThreadResponse(ctx, t, userID, unread[t.ID]))
	}

	return &dto.ThreadListResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(page, limit, total),
	}, nil
}

func (s *service) buildThreadResponse(ctx context.Context, thread entity.ChatThread, viewerID uuid.UUID, unread int64) dto.ThreadResponse {
	resp := dto.ThreadResponse{
		ID:            thread.ID.String(),
		ListingID:     thread.ListingID.String(),
		OtherPartyID:  thread.OtherParty(viewerID).String(),
		CreatedAt:     thread.CreatedAt,
		LastMessageAt: thread.LastMessageAt,
		UnreadCount:   unread,
		HasUnread:     unread > 0,
	}

	if listing, err := s.listings.FindByID(ctx, thread.ListingID); err == nil {
		resp.ListingTitle = listing.Title
	}

	if thread.LastMessageAt != nil {
		if last, err := s.repo.LastMessage(ctx, thread.ID); err == nil {
			resp.LastMessage = &dto.MessagePreview{
				ID:        last.ID,
				SenderID:  last.SenderID.String(),
				Content:   last.Content,
				CreatedAt: last.CreatedAt,
			}
		}
	}

	return resp
}
