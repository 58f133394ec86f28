package handler

import (
	"net/http"
	"time"

	"anoa.com/marketchat/internal/metrics"
	"anoa.com/marketchat/internal/modules/chat/dto"
	chat "anoa.com/marketchat/internal/modules/chat/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/pkg/apperror"
	"anoa.com/marketchat/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ChatHandler struct {
	service      chat.Service
	broker       realtime.Broker
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewChatHandler(service chat.Service, broker realtime.Broker, upgrader websocket.Upgrader, pingInterval time.Duration, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		service:      service,
		broker:       broker,
		upgrader:     upgrader,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

func threadIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("thread_id"))
	if err != nil {
		response.ResponseError(c, apperror.Invalid("thread_id", "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ChatHandler) CreateThread(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	thread, isNew, err := h.service.CreateOrGetThread(c.Request.Context(),
		uuid.MustParse(req.ListingID), userID, uuid.MustParse(req.OtherPartyID))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	c.JSON(status, dto.CreateThreadResponse{ThreadID: thread.ID.String(), IsNew: isNew})
}

func (h *ChatHandler) ListThreads(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter dto.ThreadFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	list, err := h.service.ListThreads(c.Request.Context(), userID, filter.Page, filter.Limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *ChatHandler) GetThread(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	thread, err := h.service.GetThread(c.Request.Context(), threadID, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, thread)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	msg, err := h.service.AppendMessage(c.Request.Context(), threadID, userID, req.Content, req.ClientMessageID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SendMessageResponse{MessageID: msg.ID, CreatedAt: msg.CreatedAt})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	var query dto.MessageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), threadID, userID, query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageListResponse(messages, query.AfterID))
}

func (h *ChatHandler) MarkThreadRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkThreadRead(c.Request.Context(), threadID, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCountForUser(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *ChatHandler) SearchToken(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	token, err := h.service.SearchToken(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// HandleWebSocket streams new_message and thread_updated events of one
// thread to a participant.
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	thread, err := h.service.Participant(c.Request.Context(), threadID, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	sub, err := h.broker.Subscribe(c.Request.Context(), realtime.ThreadChannel(thread.ID))
	if err != nil {
		h.logger.Error("failed to subscribe to thread channel", zap.String("thread_id", thread.ID.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime updates unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = sub.Close()
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	gauge := metrics.WebsocketConnections.WithLabelValues("threads")
	gauge.Inc()
	defer gauge.Dec()

	realtime.Pump(conn, sub, h.pingInterval, h.logger)
}
