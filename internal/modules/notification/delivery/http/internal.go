package handler

import (
	"errors"
	"net/http"

	listingRepo "anoa.com/marketchat/internal/modules/listing/repository"
	"anoa.com/marketchat/internal/modules/notification/dto"
	notification "anoa.com/marketchat/internal/modules/notification/service"
	"anoa.com/marketchat/pkg/apperror"
	"anoa.com/marketchat/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InternalHandler receives events from other marketplace services (catalog,
// admin tools). Routes using it sit behind the internal key middleware.
type InternalHandler struct {
	service  notification.NotificationService
	listings listingRepo.Repository
}

func NewInternalHandler(service notification.NotificationService, listings listingRepo.Repository) *InternalHandler {
	return &InternalHandler{service: service, listings: listings}
}

func (h *InternalHandler) CreateNotification(c *gin.Context) {
	var req dto.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.ResponseError(c, apperror.Invalid("user_id", "must be a valid UUID"))
		return
	}

	res, err := h.service.Notify(c.Request.Context(), notification.NotifyInput{
		UserID:    userID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		ActionURL: req.ActionURL,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	writeDispatch(c, res)
}

func (h *InternalHandler) ListingEvent(c *gin.Context) {
	var req dto.ListingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		response.ResponseError(c, apperror.Invalid("listing_id", "must be a valid UUID"))
		return
	}

	ctx := c.Request.Context()
	listing, err := h.listings.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ResponseError(c, apperror.ErrNotFound)
			return
		}
		response.ResponseError(c, apperror.Transient(err))
		return
	}

	var res *notification.DispatchResult
	if req.Event == "favorited" {
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			response.ResponseError(c, apperror.Invalid("actor_id", "is required for favorited events"))
			return
		}
		res, err = h.service.NotifyListingFavorited(ctx, notification.ListingFavoritedInput{
			OwnerID:      listing.OwnerID,
			ListingID:    listing.ID,
			ListingTitle: listing.Title,
			UserID:       actorID,
		})
		if err != nil {
			response.ResponseError(c, err)
			return
		}
	} else {
		res, err = h.service.NotifyListingEvent(ctx, notification.ListingEventInput{
			OwnerID:      listing.OwnerID,
			ListingID:    listing.ID,
			ListingTitle: listing.Title,
			Event:        notification.ListingEvent(req.Event),
			Reason:       req.Reason,
		})
		if err != nil {
			response.ResponseError(c, err)
			return
		}
	}

	writeDispatch(c, res)
}

func writeDispatch(c *gin.Context, res *notification.DispatchResult) {
	status := http.StatusCreated
	if res.Suppressed {
		status = http.StatusOK
	}
	c.JSON(status, dto.DispatchResponse{
		Suppressed:   res.Suppressed,
		Reason:       res.Reason,
		Notification: res.Notification,
	})
}
