package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/verify-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testOperatorToken = "operator-token-for-tests-0123456789"
	testSessionSecret = "0123456789abcdef0123456789abcdef"
)

func newAdminTestRouter(t *testing.T) (*gin.Engine, *auth.SessionService) {
	t.Helper()
	sessions, err := auth.NewSessionService(testSessionSecret, 900)
	require.NoError(t, err)

	m := NewAdminMiddleware(testOperatorToken, sessions)

	router := gin.New()
	router.GET("/protected", m.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": Actor(c)})
	})
	return router, sessions
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAdminMiddleware_MissingHeader(t *testing.T) {
	router, _ := newAdminTestRouter(t)

	w := doRequest(router, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_missing")
}

func TestAdminMiddleware_BadFormat(t *testing.T) {
	router, _ := newAdminTestRouter(t)

	w := doRequest(router, "Basic abcdef")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_format")
}

func TestAdminMiddleware_OperatorToken(t *testing.T) {
	router, _ := newAdminTestRouter(t)

	w := doRequest(router, "Bearer "+testOperatorToken)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "operator")
}

func TestAdminMiddleware_SessionToken(t *testing.T) {
	router, sessions := newAdminTestRouter(t)

	token, _, err := sessions.GenerateToken("admin@example.com", 0)
	require.NoError(t, err)

	w := doRequest(router, "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@example.com")
}

func TestAdminMiddleware_InvalidToken(t *testing.T) {
	router, _ := newAdminTestRouter(t)

	w := doRequest(router, "Bearer definitely-not-valid")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_invalid")
}
