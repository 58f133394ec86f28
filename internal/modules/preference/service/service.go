package preference

import (
	"context"
	"fmt"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/modules/preference/dto"
	repo "anoa.com/marketchat/internal/modules/preference/repository"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
)

// Suppression reasons reported by IsSuppressed.
const (
	ReasonMuted        = "muted"
	ReasonInAppOff     = "in_app_disabled"
	ReasonTypeDisabled = "type_disabled"
)

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreference, error)
	Update(ctx context.Context, userID uuid.UUID, req dto.UpdatePreferenceRequest) (*entity.NotificationPreference, error)
	// IsSuppressed reports whether a notification of type t must not be
	// created for userID, and why.
	IsSuppressed(ctx context.Context, userID uuid.UUID, t entity.NotificationType) (bool, string, error)
	DigestSubscribers(ctx context.Context, frequency entity.EmailFrequency) ([]entity.NotificationPreference, error)
	MarkDigestSent(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type service struct {
	repo repo.Repository
	now  func() time.Time
}

func NewService(repo repo.Repository) Service {
	return &service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreference, error) {
	pref, err := s.repo.FindOrCreate(ctx, entity.DefaultPreference(userID))
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("load preferences: %w", err))
	}
	if pref.Types == nil {
		pref.Types = map[string]bool{}
	}
	return pref, nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, req dto.UpdatePreferenceRequest) (*entity.NotificationPreference, error) {
	// Validate everything before touching the record.
	types := make(map[entity.NotificationType]bool, len(req.Types))
	for name, enabled := range req.Types {
		t, ok := entity.CanonicalNotificationType(name)
		if !ok {
			return nil, apperror.Invalid("types", fmt.Sprintf("unknown notification type %q", name))
		}
		types[t] = enabled
	}
	if req.EmailFrequency != nil && !entity.EmailFrequency(*req.EmailFrequency).Valid() {
		return nil, apperror.Invalid("email_frequency", "must be one of immediate, daily, weekly, never")
	}
	if req.Unmute && req.MutedUntil != nil {
		return nil, apperror.Invalid("muted_until", "cannot be combined with unmute")
	}

	// The row must exist before it can be locked.
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	pref, err := s.repo.Modify(ctx, userID, func(pref *entity.NotificationPreference) {
		if req.EmailEnabled != nil {
			pref.EmailEnabled = *req.EmailEnabled
		}
		if req.PushEnabled != nil {
			pref.PushEnabled = *req.PushEnabled
		}
		if req.InAppEnabled != nil {
			pref.InAppEnabled = *req.InAppEnabled
		}
		if req.EmailFrequency != nil {
			pref.EmailFrequency = entity.EmailFrequency(*req.EmailFrequency)
		}
		if req.MutedUntil != nil {
			until := req.MutedUntil.UTC()
			pref.MutedUntil = &until
		}
		if req.Unmute {
			pref.MutedUntil = nil
		}
		if pref.Types == nil {
			pref.Types = map[string]bool{}
		}
		for t, enabled := range types {
			pref.Types[string(t)] = enabled
		}
	})
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("update preferences: %w", err))
	}
	return pref, nil
}

func (s *service) IsSuppressed(ctx context.Context, userID uuid.UUID, t entity.NotificationType) (bool, string, error) {
	pref, err := s.Get(ctx, userID)
	if err != nil {
		return false, "", err
	}
	suppressed, reason := Evaluate(pref, t, s.now())
	return suppressed, reason, nil
}

// Evaluate applies the suppression rules to an already loaded preference.
func Evaluate(pref *entity.NotificationPreference, t entity.NotificationType, now time.Time) (bool, string) {
	if pref.Muted(now) {
		return true, ReasonMuted
	}
	if !pref.InAppEnabled {
		return true, ReasonInAppOff
	}
	if !pref.TypeEnabled(t) {
		return true, ReasonTypeDisabled
	}
	return false, ""
}

func (s *service) DigestSubscribers(ctx context.Context, frequency entity.EmailFrequency) ([]entity.NotificationPreference, error) {
	prefs, err := s.repo.FindDigestSubscribers(ctx, frequency)
	if err != nil {
		return nil, apperror.Transient(fmt.Errorf("load digest subscribers: %w", err))
	}
	return prefs, nil
}

func (s *service) MarkDigestSent(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if err := s.repo.UpdateLastDigestAt(ctx, userID, at.UTC()); err != nil {
		return apperror.Transient(fmt.Errorf("update digest time: %w", err))
	}
	return nil
}
