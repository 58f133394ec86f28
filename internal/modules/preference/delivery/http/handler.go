package handler

import (
	"net/http"

	"anoa.com/marketchat/internal/entity"
	"anoa.com/marketchat/internal/modules/preference/dto"
	preference "anoa.com/marketchat/internal/modules/preference/service"
	"anoa.com/marketchat/pkg/response"
	"github.com/gin-gonic/gin"
)

type PreferenceHandler struct {
	service preference.Service
}

func NewPreferenceHandler(service preference.Service) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

func (h *PreferenceHandler) GetPreferences(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	pref, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(pref))
}

func (h *PreferenceHandler) UpdatePreferences(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	pref, err := h.service.Update(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(pref))
}

func toResponse(pref *entity.NotificationPreference) dto.PreferenceResponse {
	types := make(map[string]bool, len(entity.NotificationTypes))
	for _, t := range entity.NotificationTypes {
		types[string(t)] = pref.TypeEnabled(t)
	}

	return dto.PreferenceResponse{
		UserID:         pref.UserID.String(),
		EmailEnabled:   pref.EmailEnabled,
		PushEnabled:    pref.PushEnabled,
		InAppEnabled:   pref.InAppEnabled,
		EmailFrequency: string(pref.EmailFrequency),
		MutedUntil:     pref.MutedUntil,
		Types:          types,
		UpdatedAt:      pref.UpdatedAt,
	}
}
