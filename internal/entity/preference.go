package entity

import (
	"time"

	"github.com/google/uuid"
)

type EmailFrequency string

const (
	EmailImmediate EmailFrequency = "immediate"
	EmailDaily     EmailFrequency = "daily"
	EmailWeekly    EmailFrequency = "weekly"
	EmailNever     EmailFrequency = "never"
)

func (f EmailFrequency) Valid() bool {
	switch f {
	case EmailImmediate, EmailDaily, EmailWeekly, EmailNever:
		return true
	}
	return false
}

// NotificationPreference holds one user's delivery settings. Types only
// stores explicit choices; a missing entry falls back to
// NotificationType.DefaultEnabled.
type NotificationPreference struct {
	UserID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	EmailEnabled   bool            `gorm:"not null" json:"email_enabled"`
	PushEnabled    bool            `gorm:"not null" json:"push_enabled"`
	InAppEnabled   bool            `gorm:"not null" json:"in_app_enabled"`
	EmailFrequency EmailFrequency  `gorm:"type:varchar(20);not null" json:"email_frequency"`
	MutedUntil     *time.Time      `json:"muted_until"`
	Types          map[string]bool `gorm:"type:text;serializer:json" json:"types"`
	LastDigestAt   *time.Time      `json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *NotificationPreference) TableName() string {
	return "notification_preferences"
}

// DefaultPreference is what a user gets on first access.
func DefaultPreference(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		UserID:         userID,
		EmailEnabled:   true,
		PushEnabled:    true,
		InAppEnabled:   true,
		EmailFrequency: EmailImmediate,
		Types:          map[string]bool{},
	}
}

// TypeEnabled applies the per-type map with the type's default.
func (p *NotificationPreference) TypeEnabled(t NotificationType) bool {
	if v, ok := p.Types[string(t)]; ok {
		return v
	}
	return t.DefaultEnabled()
}

// Muted reports whether the mute window covers now.
func (p *NotificationPreference) Muted(now time.Time) bool {
	return p.MutedUntil != nil && p.MutedUntil.After(now)
}
