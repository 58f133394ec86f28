package handler

import (
	"net/http"
	"testing"

	repo "anoa.com/marketchat/internal/modules/preference/repository"
	preference "anoa.com/marketchat/internal/modules/preference/service"
	"anoa.com/marketchat/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := preference.NewService(repo.NewRepository(testutil.NewDB(t)))
	h := NewPreferenceHandler(svc)

	router, api := testutil.NewRouter()
	api.GET("/notification-preferences", h.GetPreferences)
	api.PATCH("/notification-preferences", h.UpdatePreferences)
	return router
}

func TestGetPreferences_Defaults(t *testing.T) {
	router := setupRouter(t)
	user := uuid.NewString()

	w := testutil.DoRequest(router, http.MethodGet, "/api/notification-preferences", user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := testutil.ParseJSON(t, w)
	assert.Equal(t, user, body["user_id"])
	assert.Equal(t, true, body["email_enabled"])
	assert.Equal(t, "immediate", body["email_frequency"])

	types := body["types"].(map[string]any)
	assert.Equal(t, true, types["new_message"])
	assert.Equal(t, false, types["admin_announcement"])
}

func TestUpdatePreferences(t *testing.T) {
	router := setupRouter(t)
	user := uuid.NewString()

	w := testutil.DoRequest(router, http.MethodPatch, "/api/notification-preferences", user, map[string]any{
		"email_frequency": "daily",
		"types":           map[string]bool{"chat_message": false},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := testutil.ParseJSON(t, w)
	assert.Equal(t, "daily", body["email_frequency"])
	assert.Equal(t, true, body["push_enabled"])
	assert.Equal(t, false, body["types"].(map[string]any)["new_message"])
}

func TestUpdatePreferences_Invalid(t *testing.T) {
	router := setupRouter(t)
	user := uuid.NewString()

	w := testutil.DoRequest(router, http.MethodPatch, "/api/notification-preferences", user, map[string]any{
		"email_frequency": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(router, http.MethodPatch, "/api/notification-preferences", user, map[string]any{
		"types": map[string]bool{"not_a_type": true},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "types", testutil.ParseJSON(t, w)["field"])
}

func TestPreferences_Unauthenticated(t *testing.T) {
	router := setupRouter(t)

	w := testutil.DoRequest(router, http.MethodGet, "/api/notification-preferences", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
