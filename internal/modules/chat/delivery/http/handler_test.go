package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anoa.com/marketchat/internal/entity"
	chatRepo "anoa.com/marketchat/internal/modules/chat/repository"
	chat "anoa.com/marketchat/internal/modules/chat/service"
	listingRepo "anoa.com/marketchat/internal/modules/listing/repository"
	notifRepo "anoa.com/marketchat/internal/modules/notification/repository"
	notification "anoa.com/marketchat/internal/modules/notification/service"
	prefRepo "anoa.com/marketchat/internal/modules/preference/repository"
	preference "anoa.com/marketchat/internal/modules/preference/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	broker *realtime.MemoryBroker
}

func setupTestServer(t *testing.T, opts chat.Options, rdb *redis.Client) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	broker := realtime.NewMemoryBroker(nil)
	prefs := preference.NewService(prefRepo.NewRepository(db))
	notifs := notification.NewNotificationService(notifRepo.NewNotificationRepository(db), prefs, broker, nil, nil)
	svc := chat.NewService(chatRepo.NewRepository(db), listingRepo.NewRepository(db), notifs, broker, rdb, nil, opts, nil)

	h := NewChatHandler(svc, broker, realtime.NewUpgrader(nil), time.Second, nil)

	router, api := testutil.NewRouter()
	chatGroup := api.Group("/chat")
	{
		chatGroup.POST("/threads", h.CreateThread)
		chatGroup.GET("/threads", h.ListThreads)
		chatGroup.GET("/threads/:thread_id", h.GetThread)
		chatGroup.POST("/threads/:thread_id/messages", h.SendMessage)
		chatGroup.GET("/threads/:thread_id/messages", h.ListMessages)
		chatGroup.POST("/threads/:thread_id/read", h.MarkThreadRead)
		chatGroup.GET("/unread-count", h.UnreadCount)
		chatGroup.GET("/search-token", h.SearchToken)
	}
	api.GET("/ws/threads/:thread_id", h.HandleWebSocket)

	return &testServer{router: router, db: db, broker: broker}
}

func (s *testServer) openThread(t *testing.T, buyer, seller uuid.UUID) string {
	t.Helper()
	listing := testutil.CreateListing(t, s.db, seller, "Road bike")
	w := testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), map[string]any{
		"listing_id":     listing.ID.String(),
		"other_party_id": seller.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.ParseJSON(t, w)["thread_id"].(string)
}

func TestCreateThread(t *testing.T) {
	s := setupTestServer(t, chat.Options{}, nil)
	buyer, seller := uuid.New(), uuid.New()
	listing := testutil.CreateListing(t, s.db, seller, "Kayak")
	body := map[string]any{"listing_id": listing.ID.String(), "other_party_id": seller.String()}

	w := testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := testutil.ParseJSON(t, w)
	assert.Equal(t, true, first["is_new"])

	w = testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", seller.String(), map[string]any{
		"listing_id":     listing.ID.String(),
		"other_party_id": buyer.String(),
	})
	require.Equal(t, http.StatusOK, w.Code)
	second := testutil.ParseJSON(t, w)
	assert.Equal(t, false, second["is_new"])
	assert.Equal(t, first["thread_id"], second["thread_id"])

	w = testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), map[string]any{
		"listing_id":     listing.ID.String(),
		"other_party_id": buyer.String(),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "other_party_id", testutil.ParseJSON(t, w)["field"])

	w = testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), map[string]any{
		"listing_id":     uuid.NewString(),
		"other_party_id": seller.String(),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), map[string]any{
		"listing_id": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateThread_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := setupTestServer(t, chat.Options{ThreadRateLimit: 30 * time.Second}, rdb)
	buyer, seller := uuid.New(), uuid.New()
	s.openThread(t, buyer, seller)

	other := testutil.CreateListing(t, s.db, seller, "Tent")
	w := testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads", buyer.String(), map[string]any{
		"listing_id":     other.ID.String(),
		"other_party_id": seller.String(),
	})
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestMessageFlow(t *testing.T) {
	s := setupTestServer(t, chat.Options{}, nil)
	buyer, seller := uuid.New(), uuid.New()
	threadID := s.openThread(t, buyer, seller)
	base := "/api/chat/threads/" + threadID

	w := testutil.DoRequest(s.router, http.MethodPost, base+"/messages", buyer.String(), map[string]any{
		"content":           "Would you take 200?",
		"client_message_id": "abc-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := testutil.ParseJSON(t, w)
	require.NotNil(t, sent["message_id"])
	require.NotEmpty(t, sent["created_at"])

	w = testutil.DoRequest(s.router, http.MethodPost, base+"/messages", buyer.String(), map[string]any{
		"content":           "Would you take 200?",
		"client_message_id": "abc-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, sent["message_id"], testutil.ParseJSON(t, w)["message_id"])

	w = testutil.DoRequest(s.router, http.MethodPost, base+"/messages", buyer.String(), map[string]any{
		"content":           "Would you take 150?",
		"client_message_id": "abc-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoRequest(s.router, http.MethodPost, base+"/messages", buyer.String(), map[string]any{"content": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "content", testutil.ParseJSON(t, w)["field"])

	w = testutil.DoRequest(s.router, http.MethodPost, base+"/messages", uuid.NewString(), map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoRequest(s.router, http.MethodGet, "/api/chat/unread-count", seller.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ParseJSON(t, w)["count"])

	w = testutil.DoRequest(s.router, http.MethodGet, "/api/chat/threads", seller.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := testutil.ParseJSON(t, w)
	threads := inbox["data"].([]any)
	require.Len(t, threads, 1)
	assert.Equal(t, true, threads[0].(map[string]any)["has_unread"])

	w = testutil.DoRequest(s.router, http.MethodGet, base+"/messages", seller.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages := testutil.ParseJSON(t, w)["data"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "Would you take 200?", messages[0].(map[string]any)["content"])

	w = testutil.DoRequest(s.router, http.MethodGet, "/api/chat/unread-count", seller.String(), nil)
	assert.Equal(t, float64(0), testutil.ParseJSON(t, w)["count"])

	w = testutil.DoRequest(s.router, http.MethodPost, base+"/read", seller.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), testutil.ParseJSON(t, w)["updated"])

	id := uint64(sent["message_id"].(float64))
	w = testutil.DoRequest(s.router, http.MethodGet, fmt.Sprintf("%s/messages?after_id=%d", base, id), buyer.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	tail := testutil.ParseJSON(t, w)
	assert.Empty(t, tail["data"])
	assert.Equal(t, float64(id), tail["next_after_id"])

	w = testutil.DoRequest(s.router, http.MethodGet, base+"/messages?limit=1000", buyer.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(s.router, http.MethodGet, "/api/chat/threads/not-a-uuid", buyer.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(s.router, http.MethodGet, "/api/chat/threads/"+uuid.NewString(), buyer.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(s.router, http.MethodGet, base, buyer.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seller.String(), testutil.ParseJSON(t, w)["other_party_id"])
}

func TestSearchTokenWithoutSearch(t *testing.T) {
	s := setupTestServer(t, chat.Options{}, nil)
	w := testutil.DoRequest(s.router, http.MethodGet, "/api/chat/search-token", uuid.NewString(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestThreadWebSocket(t *testing.T) {
	s := setupTestServer(t, chat.Options{}, nil)
	buyer, seller := uuid.New(), uuid.New()
	threadID := s.openThread(t, buyer, seller)

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/threads/" + threadID

	header := http.Header{}
	header.Set("X-User-ID", uuid.NewString())
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	header.Set("X-User-ID", seller.String())
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	channel := realtime.ThreadChannel(uuid.MustParse(threadID))
	require.Eventually(t, func() bool {
		return s.broker.Subscribers(channel) == 1
	}, time.Second, 10*time.Millisecond)

	w := testutil.DoRequest(s.router, http.MethodPost, "/api/chat/threads/"+threadID+"/messages", buyer.String(), map[string]any{
		"content": "Still for sale?",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt realtime.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, realtime.EventNewMessage, evt.Type)

	var msg entity.Message
	require.NoError(t, json.Unmarshal(evt.Data, &msg))
	assert.Equal(t, "Still for sale?", msg.Content)
	assert.Equal(t, buyer, msg.SenderID)
}
