package dto

import "time"

// UpdatePreferenceRequest is a partial update: nil fields are left as they
// are and Types entries are merged key by key.
type UpdatePreferenceRequest struct {
	EmailEnabled   *bool           `json:"email_enabled"`
	PushEnabled    *bool           `json:"push_enabled"`
	InAppEnabled   *bool           `json:"in_app_enabled"`
	EmailFrequency *string         `json:"email_frequency" binding:"omitempty,oneof=immediate daily weekly never"`
	MutedUntil     *time.Time      `json:"muted_until"`
	Unmute         bool            `json:"unmute"`
	Types          map[string]bool `json:"types"`
}

type PreferenceResponse struct {
	UserID         string          `json:"user_id"`
	EmailEnabled   bool            `json:"email_enabled"`
	PushEnabled    bool            `json:"push_enabled"`
	InAppEnabled   bool            `json:"in_app_enabled"`
	EmailFrequency string          `json:"email_frequency"`
	MutedUntil     *time.Time      `json:"muted_until"`
	Types          map[string]bool `json:"types"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
