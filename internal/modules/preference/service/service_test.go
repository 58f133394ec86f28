package preference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/modules/preference/dto"
	repo "anoa.com/marketchat/internal/modules/preference/repository"
	"anoa.com/marketchat/internal/testutil"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func newService(t *testing.T) (*service, repo.Repository) {
	t.Helper()
	r := repo.NewRepository(testutil.NewDB(t))
	return NewService(r).(*service), r
}

func TestGet_LazyDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user := uuid.New()

	pref, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, pref.UserID)
	assert.True(t, pref.EmailEnabled)
	assert.True(t, pref.PushEnabled)
	assert.True(t, pref.InAppEnabled)
	assert.Equal(t, entity.EmailImmediate, pref.EmailFrequency)
	assert.Nil(t, pref.MutedUntil)
	assert.True(t, pref.TypeEnabled(entity.NotificationNewMessage))
	assert.False(t, pref.TypeEnabled(entity.NotificationAdminAnnouncement))

	again, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, pref.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestGet_ConcurrentFirstAccess(t *testing.T) {
	ctx := context.Background()
	svc, r := newService(t)
	user := uuid.New()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Get(ctx, user)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err := r.FindByUserID(ctx, user)
	require.NoError(t, err)
}

func TestUpdate_PartialMerge(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user := uuid.New()

	_, err := svc.Update(ctx, user, dto.UpdatePreferenceRequest{
		PushEnabled: boolPtr(false),
		Types:       map[string]bool{"new_review": false},
	})
	require.NoError(t, err)

	pref, err := svc.Update(ctx, user, dto.UpdatePreferenceRequest{
		EmailFrequency: strPtr("weekly"),
		Types:          map[string]bool{"message_received": false},
	})
	require.NoError(t, err)

	assert.False(t, pref.PushEnabled, "earlier update kept")
	assert.True(t, pref.EmailEnabled, "unspecified field unchanged")
	assert.Equal(t, entity.EmailWeekly, pref.EmailFrequency)
	assert.False(t, pref.TypeEnabled(entity.NotificationNewReview))
	assert.False(t, pref.TypeEnabled(entity.NotificationNewMessage), "alias stored under canonical key")
	_, aliasKept := pref.Types["message_received"]
	assert.False(t, aliasKept)

	stored, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, pref.Types, stored.Types)
	assert.Equal(t, entity.EmailWeekly, stored.EmailFrequency)
}

func TestUpdate_ConcurrentTypeChangesMerge(t *testing.T) {
	ctx := context.Background()
	svc, r := newService(t)
	user := uuid.New()

	types := []entity.NotificationType{
		entity.NotificationNewMessage,
		entity.NotificationListingSold,
		entity.NotificationNewReview,
		entity.NotificationPriceDrop,
		entity.NotificationNewFollower,
		entity.NotificationListingFavorited,
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(types))
	for _, tp := range types {
		wg.Add(1)
		go func(tp entity.NotificationType) {
			defer wg.Done()
			_, err := svc.Update(ctx, user, dto.UpdatePreferenceRequest{Types: map[string]bool{string(tp): false}})
			errs <- err
		}(tp)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := r.FindByUserID(ctx, user)
	require.NoError(t, err)
	for _, tp := range types {
		assert.False(t, stored.TypeEnabled(tp), "%s lost", tp)
	}
}

func TestUpdate_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user := uuid.New()

	_, err := svc.Update(ctx, user, dto.UpdatePreferenceRequest{Types: map[string]bool{"bogus": true}})
	var fieldErr *apperror.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "types", fieldErr.Field)

	_, err = svc.Update(ctx, user, dto.UpdatePreferenceRequest{EmailFrequency: strPtr("hourly")})
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "email_frequency", fieldErr.Field)
}

func TestUpdate_MuteAndUnmute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user := uuid.New()

	until := time.Now().Add(2 * time.Hour)
	pref, err := svc.Update(ctx, user, dto.UpdatePreferenceRequest{MutedUntil: &until})
	require.NoError(t, err)
	require.NotNil(t, pref.MutedUntil)

	pref, err = svc.Update(ctx, user, dto.UpdatePreferenceRequest{Unmute: true})
	require.NoError(t, err)
	assert.Nil(t, pref.MutedUntil)

	stored, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, stored.MutedUntil)
}

func TestIsSuppressed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		update     dto.UpdatePreferenceRequest
		typ        entity.NotificationType
		suppressed bool
		reason     string
	}{
		{name: "defaults allow", typ: entity.NotificationNewMessage},
		{name: "admin announcement off by default", typ: entity.NotificationAdminAnnouncement, suppressed: true, reason: ReasonTypeDisabled},
		{
			name:   "admin announcement opted in",
			update: dto.UpdatePreferenceRequest{Types: map[string]bool{"announcement": true}},
			typ:    entity.NotificationAdminAnnouncement,
		},
		{
			name:       "in app disabled",
			update:     dto.UpdatePreferenceRequest{InAppEnabled: boolPtr(false)},
			typ:        entity.NotificationListingSold,
			suppressed: true,
			reason:     ReasonInAppOff,
		},
		{
			name:       "type disabled",
			update:     dto.UpdatePreferenceRequest{Types: map[string]bool{"listing_sold": false}},
			typ:        entity.NotificationListingSold,
			suppressed: true,
			reason:     ReasonTypeDisabled,
		},
		{
			name:   "other type unaffected",
			update: dto.UpdatePreferenceRequest{Types: map[string]bool{"listing_sold": false}},
			typ:    entity.NotificationPriceDrop,
		},
		{
			name:       "muted in the future",
			update:     dto.UpdatePreferenceRequest{MutedUntil: timePtr(now.Add(time.Hour))},
			typ:        entity.NotificationNewMessage,
			suppressed: true,
			reason:     ReasonMuted,
		},
		{
			name:   "mute window passed",
			update: dto.UpdatePreferenceRequest{MutedUntil: timePtr(now.Add(-time.Minute))},
			typ:    entity.NotificationNewMessage,
		},
		{
			name: "email weekly with per-type off",
			update: dto.UpdatePreferenceRequest{
				EmailEnabled:   boolPtr(true),
				EmailFrequency: strPtr("weekly"),
				Types:          map[string]bool{"new_message": false},
			},
			typ:        entity.NotificationNewMessage,
			suppressed: true,
			reason:     ReasonTypeDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			svc.now = func() time.Time { return now }
			user := uuid.New()

			_, err := svc.Update(ctx, user, tt.update)
			require.NoError(t, err)

			suppressed, reason, err := svc.IsSuppressed(ctx, user, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.suppressed, suppressed)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
