package dto

import (
	"time"

	"anoa.com/marketchat/internal/entity"
)

type NotificationFilter struct {
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
	IncludeRead    *bool  `form:"include_read"`
	IncludeExpired bool   `form:"include_expired"`
	Type           string `form:"type"`
}

type NotificationListResponse struct {
	Items   []entity.Notification `json:"items"`
	Count   int64                 `json:"count"`
	HasMore bool                  `json:"has_more"`
}

// CreateNotificationRequest is accepted from trusted internal callers.
type CreateNotificationRequest struct {
	UserID    string         `json:"user_id" binding:"required,uuid"`
	Type      string         `json:"type" binding:"required"`
	Title     string         `json:"title" binding:"required,max=255"`
	Message   string         `json:"message" binding:"max=2000"`
	Data      map[string]any `json:"data"`
	ActionURL string         `json:"action_url" binding:"max=500"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

// ListingEventRequest reports a catalog lifecycle change. ActorID is the
// user behind a favorited event.
type ListingEventRequest struct {
	ListingID string `json:"listing_id" binding:"required,uuid"`
	Event     string `json:"event" binding:"required,oneof=approved rejected expired sold favorited"`
	Reason    string `json:"reason"`
	ActorID   string `json:"actor_id" binding:"omitempty,uuid"`
}

type DispatchResponse struct {
	Suppressed   bool                 `json:"suppressed"`
	Reason       string               `json:"reason,omitempty"`
	Notification *entity.Notification `json:"notification,omitempty"`
}
