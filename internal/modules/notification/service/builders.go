package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/pkg/apperror"
	"github.com/google/uuid"
)

const (
	previewLength      = 100
	minRejectionReason = 10
)

type NewMessageInput struct {
	RecipientID  uuid.UUID
	SenderID     uuid.UUID
	ThreadID     uuid.UUID
	ListingID    uuid.UUID
	ListingTitle string
	MessageID    uint64
	Content      string
}

type ListingEvent string

const (
	ListingApproved ListingEvent = "approved"
	ListingRejected ListingEvent = "rejected"
	ListingExpired  ListingEvent = "expired"
	ListingSold     ListingEvent = "sold"
)

type ListingEventInput struct {
	OwnerID      uuid.UUID
	ListingID    uuid.UUID
	ListingTitle string
	Event        ListingEvent
	Reason       string
}

type ListingFavoritedInput struct {
	OwnerID      uuid.UUID
	ListingID    uuid.UUID
	ListingTitle string
	UserID       uuid.UUID
}

// Preview shortens content to 100 characters followed by an ellipsis.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	return string([]rune(content)[:previewLength]) + "..."
}

// clip shortens s to at most n runes, ending in an ellipsis when cut.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func (s *notificationService) NotifyNewMessage(ctx context.Context, in NewMessageInput) (*DispatchResult, error) {
	title := "New message"
	if in.ListingTitle != "" {
		title = clip(fmt.Sprintf("New message about %s", in.ListingTitle), entity.NotificationTitleMaxLen)
	}

	return s.Notify(ctx, NotifyInput{
		UserID:  in.RecipientID,
		Type:    string(entity.NotificationNewMessage),
		Title:   title,
		Message: Preview(in.Content),
		Data: map[string]any{
			"thread_id":  in.ThreadID.String(),
			"listing_id": in.ListingID.String(),
			"sender_id":  in.SenderID.String(),
			"message_id": in.MessageID,
		},
		ActionURL: fmt.Sprintf("/chat/%s", in.ThreadID),
	})
}

func (s *notificationService) NotifyListingEvent(ctx context.Context, in ListingEventInput) (*DispatchResult, error) {
	var (
		t       entity.NotificationType
		title   string
		message string
	)

	switch in.Event {
	case ListingApproved:
		t = entity.NotificationListingApproved
		title = "Your listing was approved"
		message = fmt.Sprintf("%q is now live on the marketplace.", in.ListingTitle)
	case ListingRejected:
		reason := strings.TrimSpace(in.Reason)
		if utf8.RuneCountInString(reason) < minRejectionReason {
			return nil, apperror.Invalid("reason", fmt.Sprintf("must be at least %d characters", minRejectionReason))
		}
		t = entity.NotificationListingRejected
		title = "Your listing was rejected"
		message = fmt.Sprintf("%q was not approved: %s", in.ListingTitle, reason)
	case ListingExpired:
		t = entity.NotificationListingExpired
		title = "Your listing has expired"
		message = fmt.Sprintf("%q is no longer visible. Renew it to publish it again.", in.ListingTitle)
	case ListingSold:
		t = entity.NotificationListingSold
		title = "Listing marked as sold"
		message = fmt.Sprintf("%q has been marked as sold.", in.ListingTitle)
	default:
		return nil, apperror.Invalid("event", fmt.Sprintf("unknown listing event %q", in.Event))
	}

	data := map[string]any{"listing_id": in.ListingID.String()}
	if in.Event == ListingRejected {
		data["reason"] = strings.TrimSpace(in.Reason)
	}

	return s.Notify(ctx, NotifyInput{
		UserID:    in.OwnerID,
		Type:      string(t),
		Title:     title,
		Message:   message,
		Data:      data,
		ActionURL: fmt.Sprintf("/listings/%s", in.ListingID),
	})
}

func (s *notificationService) NotifyListingFavorited(ctx context.Context, in ListingFavoritedInput) (*DispatchResult, error) {
	if in.UserID == in.OwnerID {
		return &DispatchResult{Suppressed: true, Reason: "self"}, nil
	}

	return s.Notify(ctx, NotifyInput{
		UserID:  in.OwnerID,
		Type:    string(entity.NotificationListingFavorited),
		Title:   "Someone saved your listing",
		Message: fmt.Sprintf("%q was added to a favorites list.", in.ListingTitle),
		Data: map[string]any{
			"listing_id": in.ListingID.String(),
			"user_id":    in.UserID.String(),
		},
		ActionURL: fmt.Sprintf("/listings/%s", in.ListingID),
	})
}
