package handler

import (
	"net/http"
	"time"

	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/notification/dto"
	notification "anoa.com/marketchat/internal/modules/notification/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	service      notification.NotificationService
	broker       realtime.Broker
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewNotificationHandler(service notification.NotificationService, broker realtime.Broker, upgrader websocket.Upgrader, pingInterval time.Duration, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:      service,
		broker:       broker,
		upgrader:     upgrader,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// REST Endpoints

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter dto.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	list, err := h.service.GetNotifications(c.Request.Context(), userID, filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id", "field": "id"})
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), userID, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id", "field": "id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// WebSocket Endpoint

func (h *NotificationHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	// Subscribe before upgrading so a broker failure can still be reported
	// as a regular HTTP error.
	sub, err := h.broker.Subscribe(c.Request.Context(), realtime.UserChannel(userID))
	if err != nil {
		h.logger.Error("failed to subscribe to user channel", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime updates unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = sub.Close()
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	gauge := metrics.WebsocketConnections.WithLabelValues("notifications")
	gauge.Inc()
	defer gauge.Dec()

	realtime.Pump(conn, sub, h.pingInterval, h.logger)
}
