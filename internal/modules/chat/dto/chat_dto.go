package dto

import (
	"time"

	"anoa.com/marketchat/internal/entity"
	commonDto "anoa.com/marketchat/pkg/dto"
)

type CreateThreadRequest struct {
	ListingID    string `json:"listing_id" binding:"required,uuid"`
	OtherPartyID string `json:"other_party_id" binding:"required,uuid"`
}

type CreateThreadResponse struct {
	ThreadID string `json:"thread_id"`
	IsNew    bool   `json:"is_new"`
}

type SendMessageRequest struct {
	Content         string `json:"content" binding:"required,max=16000"`
	ClientMessageID string `json:"client_message_id" binding:"omitempty,max=64"`
}

type SendMessageResponse struct {
	MessageID uint64    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageQuery lets a reconnecting client fetch only what it missed.
type MessageQuery struct {
	AfterID uint64 `form:"after_id"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

type ThreadFilter struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

type MessagePreview struct {
	ID        uint64    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ThreadResponse struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listing_id"`
	ListingTitle  string          `json:"listing_title,omitempty"`
	OtherPartyID  string          `json:"other_party_id"`
	CreatedAt     time.Time       `json:"created_at"`
	LastMessageAt *time.Time      `json:"last_message_at"`
	LastMessage   *MessagePreview `json:"last_message,omitempty"`
	UnreadCount   int64           `json:"unread_count"`
	HasUnread     bool            `json:"has_unread"`
}

type ThreadListResponse struct {
	Data []ThreadResponse         `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type MessageListResponse struct {
	Data []entity.Message `json:"data"`
	// NextAfterID is the highest id returned, or the request's after_id when
	// nothing new arrived. Data is time ordered, so its last element is not
	// always the right cursor.
	NextAfterID uint64 `json:"next_after_id"`
}

func NewMessageListResponse(messages []entity.Message, afterID uint64) MessageListResponse {
	next := afterID
	for _, m := range messages {
		if m.ID > next {
			next = m.ID
		}
	}
	return MessageListResponse{Data: messages, NextAfterID: next}
}

type SearchTokenResponse struct {
	Token     string    `json:"token"`
	Host      string    `json:"host"`
	Index     string    `json:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}
