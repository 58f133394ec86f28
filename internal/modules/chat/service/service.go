package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/chat/dto"
	repo "anoa.com/marketchat/internal/modules/chat/repository"
	listingRepo "anoa.com/marketchat/internal/modules/listing/repository"
	notification "anoa.com/marketchat/internal/modules/notification/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	// CreateOrGetThread resolves the single thread between requesterID and
	// otherPartyID about listingID, creating it on first contact.
	CreateOrGetThread(ctx context.Context, listingID, requesterID, otherPartyID uuid.UUID) (*entity.ChatThread, bool, error)
	GetThread(ctx context.Context, threadID, requesterID uuid.UUID) (*dto.ThreadResponse, error)
	ListThreads(ctx context.Context, userID uuid.UUID, page, limit int) (*dto.ThreadListResponse, error)
	// Participant returns the thread when userID takes part in it.
	Participant(ctx context.Context, threadID, userID uuid.UUID) (*entity.ChatThread, error)

	AppendMessage(ctx context.Context, threadID, senderID uuid.UUID, content, idempotencyKey string) (*entity.Message, error)
	ListMessages(ctx context.Context, threadID, requesterID uuid.UUID, query dto.MessageQuery) ([]entity.Message, error)
	MarkThreadRead(ctx context.Context, threadID, requesterID uuid.UUID) (int64, error)

	UnreadCountForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ThreadHasUnread(ctx context.Context, threadID, userID uuid.UUID) (bool, error)

	SearchToken(ctx context.Context, userID uuid.UUID) (*dto.SearchTokenResponse, error)
	PurgeExpiredIdempotencyKeys(ctx context.Context) (int64, error)
}

// Notifier is the slice of the notification dispatcher the message log
// depends on.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, in notification.NewMessageInput) (*notification.DispatchResult, error)
}

type Options struct {
	// ThreadRateLimit is the cooldown between two new threads by the same
	// user. Zero disables it.
	ThreadRateLimit   time.Duration
	IdempotencyWindow time.Duration
}

type service struct {
	repo        repo.Repository
	listings    listingRepo.Repository
	notifier    Notifier
	broker      realtime.Broker
	redisClient *redis.Client
	search      MessageSearch
	sanitizer   *bluemonday.Policy
	opts        Options
	logger      *zap.Logger
	now         func() time.Time
}

// NewService wires the chat core. redisClient and search may be nil.
func NewService(
	chatRepo repo.Repository,
	listings listingRepo.Repository,
	notifier Notifier,
	broker realtime.Broker,
	redisClient *redis.Client,
	search MessageSearch,
	opts Options,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.IdempotencyWindow <= 0 {
		opts.IdempotencyWindow = 24 * time.Hour
	}
	return &service{
		repo:        chatRepo,
		listings:    listings,
		notifier:    notifier,
		broker:      broker,
		redisClient: redisClient,
		search:      search,
		sanitizer:   bluemonday.StrictPolicy(),
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Participant(ctx context.Context, threadID, userID uuid.UUID) (*entity.ChatThread, error) {
	thread, err := s.repo.FindThreadByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.Transient(fmt.Errorf("find thread: %w", err))
	}
	if !thread.HasParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return thread, nil
}

func (s *service) publish(ctx context.Context, channel string, t realtime.EventType, payload any) {
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

// threadUpdate is the payload of thread_updated events.
type threadUpdate struct {
	ThreadID      uuid.UUID  `json:"thread_id"`
	Reason        string     `json:"reason"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	ReaderID      *uuid.UUID `json:"reader_id,omitempty"`
	ReadCount     int64      `json:"read_count,omitempty"`
}
