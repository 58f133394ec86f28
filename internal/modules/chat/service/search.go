package chat

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/modules/chat/dto"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const (
	MessageIndex     = "chat_messages"
	signingKeyName   = "ChatTenantTokenSigner"
	searchTokenTTL   = 24 * time.Hour
	signingKeyExpiry = 100
)

// MessageSearch keeps a per-participant searchable copy of chat messages.
type MessageSearch interface {
	IndexMessage(ctx context.Context, thread *entity.ChatThread, msg *entity.Message) error
	GenerateSearchToken(userID uuid.UUID) (string, time.Time, error)
	Host() string
}

type meiliMessageSearch struct {
	client        meilisearch.ServiceManager
	host          string
	signingKeyUID string
	signingKey    string
	sanitizer     *bluemonday.Policy
	logger        *zap.Logger
}

func NewMessageSearch(client meilisearch.ServiceManager, host string, logger *zap.Logger) MessageSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &meiliMessageSearch{
		client:    client,
		host:      host,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
	s.initIndex()
	s.initSigningKey()
	return s
}

func (s *meiliMessageSearch) initSigningKey() {
	resp, err := s.client.GetKeys(&meilisearch.KeysQuery{
		Limit: 20,
	})
	if err != nil {
		s.logger.Warn("failed to list meilisearch keys", zap.Error(err))
		return
	}

	for _, key := range resp.Results {
		if key.Name == signingKeyName {
			s.signingKeyUID = key.UID
			s.signingKey = key.Key
			s.logger.Info("found existing meilisearch signing key")
			return
		}
	}

	key, err := s.client.CreateKey(&meilisearch.Key{
		Description: "Signs tenant tokens for chat message search",
		Name:        signingKeyName,
		Actions:     []string{"search"},
		Indexes:     []string{MessageIndex},
		ExpiresAt:   time.Now().AddDate(signingKeyExpiry, 0, 0),
	})
	if err != nil {
		s.logger.Warn("failed to create meilisearch signing key", zap.Error(err))
		return
	}

	s.signingKeyUID = key.UID
	s.signingKey = key.Key
	s.logger.Info("created meilisearch signing key")
}

func (s *meiliMessageSearch) initIndex() {
	filterable := []any{"participants", "thread_id", "listing_id"}
	if _, err := s.client.Index(MessageIndex).UpdateFilterableAttributes(&filterable); err != nil {
		s.logger.Warn("failed to update filterable attributes", zap.String("index", MessageIndex), zap.Error(err))
	}

	sortable := []string{"created_at"}
	if _, err := s.client.Index(MessageIndex).UpdateSortableAttributes(&sortable); err != nil {
		s.logger.Warn("failed to update sortable attributes", zap.String("index", MessageIndex), zap.Error(err))
	}
}

type meiliMessageDoc struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"thread_id"`
	ListingID    string   `json:"listing_id"`
	SenderID     string   `json:"sender_id"`
	Participants []string `json:"participants"`
	Content      string   `json:"content"`
	CreatedAt    int64    `json:"created_at"`
}

func (s *meiliMessageSearch) cleanContentForIndex(content string) string {
	sanitized := s.sanitizer.Sanitize(content)
	return strings.Join(strings.Fields(html.UnescapeString(sanitized)), " ")
}

func (s *meiliMessageSearch) IndexMessage(_ context.Context, thread *entity.ChatThread, msg *entity.Message) error {
	doc := meiliMessageDoc{
		ID:           fmt.Sprintf("%d", msg.ID),
		ThreadID:     thread.ID.String(),
		ListingID:    thread.ListingID.String(),
		SenderID:     msg.SenderID.String(),
		Participants: []string{thread.PartyAID.String(), thread.PartyBID.String()},
		Content:      s.cleanContentForIndex(msg.Content),
		CreatedAt:    msg.CreatedAt.Unix(),
	}

	task, err := s.client.Index(MessageIndex).AddDocuments([]meiliMessageDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	s.logger.Debug("indexed chat message", zap.String("id", doc.ID), zap.Int64("task_uid", task.TaskUID))
	return nil
}

// GenerateSearchToken signs a tenant token that only matches messages of
// threads the user takes part in.
func (s *meiliMessageSearch) GenerateSearchToken(userID uuid.UUID) (string, time.Time, error) {
	if s.signingKeyUID == "" || s.signingKey == "" {
		return "", time.Time{}, fmt.Errorf("signing key not initialized")
	}

	searchRules := map[string]any{
		MessageIndex: map[string]any{
			"filter": fmt.Sprintf("participants = '%s'", userID.String()),
		},
	}

	expiresAt := time.Now().UTC().Add(searchTokenTTL)
	token, err := s.client.GenerateTenantToken(s.signingKeyUID, searchRules, &meilisearch.TenantTokenOptions{
		APIKey:    s.signingKey,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *meiliMessageSearch) Host() string {
	return s.host
}

func (s *service) SearchToken(_ context.Context, userID uuid.UUID) (*dto.SearchTokenResponse, error) {
	if s.search == nil {
		return nil, apperror.New(http.StatusServiceUnavailable, "message search is not configured", nil)
	}

	token, expiresAt, err := s.search.GenerateSearchToken(userID)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("generate search token: %w", err))
	}

	return &dto.SearchTokenResponse{
		Token:     token,
		Host:      s.search.Host(),
		Index:     MessageIndex,
		ExpiresAt: expiresAt,
	}, nil
}

func strPtr(s string) *string {
	return &s
}
