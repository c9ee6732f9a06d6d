package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/antidetect/dashboard_service/internal/api/handlers/common"
	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	authsvc "github.com/antidetect/dashboard_service/internal/domain/services/auth"
	"github.com/antidetect/dashboard_service/pkg/validation"
)

type fakeSessions struct {
	loginErr  error
	loggedOut []string
	session   *repositories.StoredSession
}

func (f *fakeSessions) Login(_ context.Context, form authsvc.LoginForm, client authsvc.ClientInfo) (*repositories.StoredSession, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.session = &repositories.StoredSession{
		ID:        "sess-1",
		User:      entities.User{ID: "u1", Email: form.Email},
		UserAgent: client.UserAgent,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return f.session, nil
}

func (f *fakeSessions) Logout(_ context.Context, sessionID string) error {
	f.loggedOut = append(f.loggedOut, sessionID)
	return nil
}

func (f *fakeSessions) Balance(string) (*entities.Balance, bool) {
	return &entities.Balance{Amount: decimal.NewFromInt(42), Currency: "USD"}, true
}

func setupRouter(sessions SessionProvider, session *repositories.StoredSession) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandlers(sessions, false, zap.NewNop())
	router := gin.New()
	router.POST("/login", h.Login)

	authed := router.Group("/")
	authed.Use(func(c *gin.Context) {
		if session != nil {
			c.Set(common.ContextKeySession, session)
			c.Set(common.ContextKeyUserID, session.User.ID)
		}
		c.Next()
	})
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	return router
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	sessions := &fakeSessions{}
	router := setupRouter(sessions, nil)

	body, _ := json.Marshal(map[string]string{"email": "ann@example.com", "password": "secret"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, resp.Balance)
	assert.True(t, resp.Balance.Amount.Equal(decimal.NewFromInt(42)))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, common.SessionCookie, cookies[0].Name)
	assert.Equal(t, "sess-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad credentials", `{"email":"a@b.c","password":"x"}`, authsvc.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"invalid form", `{"email":"nope","password":""}`, validation.FieldErrors{"email": "must be a valid email address"}, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(&fakeSessions{loginErr: tt.err}, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantErr)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	sessions := &fakeSessions{}
	session := &repositories.StoredSession{ID: "sess-9", User: entities.User{ID: "u1"}}
	router := setupRouter(sessions, session)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"sess-9"}, sessions.loggedOut)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestMe(t *testing.T) {
	session := &repositories.StoredSession{ID: "sess-1", User: entities.User{ID: "u1", DisplayName: "Ann"}}

	w := httptest.NewRecorder()
	setupRouter(&fakeSessions{}, session).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"display_name":"Ann"`)

	w = httptest.NewRecorder()
	setupRouter(&fakeSessions{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
