package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationNewMessage        NotificationType = "new_message"
	NotificationListingApproved   NotificationType = "listing_approved"
	NotificationListingRejected   NotificationType = "listing_rejected"
	NotificationListingExpired    NotificationType = "listing_expired"
	NotificationListingSold       NotificationType = "listing_sold"
	NotificationListingFavorited  NotificationType = "listing_favorited"
	NotificationNewFollower       NotificationType = "new_follower"
	NotificationNewReview         NotificationType = "new_review"
	NotificationPriceDrop         NotificationType = "price_drop"
	NotificationAdminAnnouncement NotificationType = "admin_announcement"
	NotificationSystem            NotificationType = "system"
)

// NotificationTypes lists every canonical type.
var NotificationTypes = []NotificationType{
	NotificationNewMessage,
	NotificationListingApproved,
	NotificationListingRejected,
	NotificationListingExpired,
	NotificationListingSold,
	NotificationListingFavorited,
	NotificationNewFollower,
	NotificationNewReview,
	NotificationPriceDrop,
	NotificationAdminAnnouncement,
	NotificationSystem,
}

// notificationTypeAliases maps legacy names onto the canonical set. The table
// is closed: anything not listed here or in NotificationTypes is rejected.
var notificationTypeAliases = map[string]NotificationType{
	"message_received":    NotificationNewMessage,
	"chat_message":        NotificationNewMessage,
	"new_chat_message":    NotificationNewMessage,
	"message":             NotificationNewMessage,
	"listing_approval":    NotificationListingApproved,
	"listing_published":   NotificationListingApproved,
	"listing_rejection":   NotificationListingRejected,
	"listing_declined":    NotificationListingRejected,
	"listing_expiry":      NotificationListingExpired,
	"favorite":            NotificationListingFavorited,
	"listing_favourited":  NotificationListingFavorited,
	"favorite_added":      NotificationListingFavorited,
	"follow":              NotificationNewFollower,
	"follower":            NotificationNewFollower,
	"review":              NotificationNewReview,
	"review_received":     NotificationNewReview,
	"announcement":        NotificationAdminAnnouncement,
	"admin_message":       NotificationAdminAnnouncement,
}

var canonicalTypes = func() map[string]NotificationType {
	m := make(map[string]NotificationType, len(NotificationTypes))
	for _, t := range NotificationTypes {
		m[string(t)] = t
	}
	return m
}()

// CanonicalNotificationType resolves s (case and surrounding space
// insensitive) to its canonical type. Every comparison of types, whether at
// creation, preference lookup or list filtering, goes through here.
func CanonicalNotificationType(s string) (NotificationType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := canonicalTypes[key]; ok {
		return t, true
	}
	if t, ok := notificationTypeAliases[key]; ok {
		return t, true
	}
	return "", false
}

// DefaultEnabled is the per-type value used when a preference has no entry.
func (t NotificationType) DefaultEnabled() bool {
	return t != NotificationAdminAnnouncement
}

// NotificationTitleMaxLen matches the title column size.
const NotificationTitleMaxLen = 255

type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(50);not null;index" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	Data      map[string]any   `gorm:"type:text;serializer:json" json:"data,omitempty"`
	IsRead    bool             `gorm:"not null;default:false;index" json:"is_read"`
	ActionURL string           `gorm:"size:500" json:"action_url,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index:idx_notifications_user_created,priority:2" json:"created_at"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	ExpiresAt *time.Time       `gorm:"index" json:"expires_at,omitempty"`
}

func (n *Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

// Expired reports whether the soft expiry has passed at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
