package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/revocation"
	"github.com/campusshare/analytics-api/internal/service"
)

type countingStore struct {
	revocation.Store
	lookups int
	err     error
}

func (s *countingStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	return s.Store.IsRevoked(ctx, token)
}

type gateFixture struct {
	tokens *service.TokenService
	store  *countingStore
	gate   *Gate
	now    time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &gateFixture{now: time.Now()}
	tokens, err := service.NewTokenService(service.TokenConfig{
		AccessSecret:  "access-secret-for-middleware-tests",
		RefreshSecret: "refresh-secret-for-middleware-tests",
		Issuer:        "campus-analytics",
		AccessTTL:     time.Hour,
	})
	require.NoError(t, err)
	f.tokens = tokens.WithClock(func() time.Time { return f.now })
	f.store = &countingStore{Store: revocation.NewMemoryStore(zap.NewNop())}
	f.gate = NewGate(f.tokens, f.store, nil, zap.NewNop())
	return f
}

func (f *gateFixture) accessToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	token, _, err := f.tokens.IssueAccess("u1", role)
	require.NoError(t, err)
	return token
}

func (f *gateFixture) router() *gin.Engine {
	r := gin.New()
	r.Use(f.gate.RevocationGate())
	r.GET("/public", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/private", f.gate.Authenticate(), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID, "token": CurrentToken(c)})
	})
	return r
}

func serve(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestAuthenticateRequiresHeader(t *testing.T) {
	f := newGateFixture(t)

	rec := serve(f.router(), "/private", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, message := errorCode(t, rec)
	assert.Equal(t, "UNAUTHORIZED", code)
	assert.Equal(t, "No token provided", message)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	f := newGateFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()

	f.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	f := newGateFixture(t)
	token := f.accessToken(t, models.RoleStudent)

	rec := serve(f.router(), "/private", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, token, body["token"])
	assert.Equal(t, 1, f.store.lookups, "gate and authenticate share one lookup")
}

func TestAuthenticateRejectsInvalidAndExpiredTokens(t *testing.T) {
	f := newGateFixture(t)

	rec := serve(f.router(), "/private", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "INVALID_TOKEN", code)

	token := f.accessToken(t, models.RoleStudent)
	f.now = f.now.Add(2 * time.Hour)
	rec = serve(f.router(), "/private", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, message := errorCode(t, rec)
	assert.Equal(t, "INVALID_TOKEN", code)
	assert.Equal(t, "Token expired", message)
}

func TestRevokedTokenRejectedBeforeVerification(t *testing.T) {
	f := newGateFixture(t)
	token := f.accessToken(t, models.RoleAdmin)
	require.NoError(t, f.store.Revoke(context.Background(), token, time.Now().Add(time.Hour)))

	// Past its expiry the token still reports as revoked, not expired.
	f.now = f.now.Add(2 * time.Hour)
	rec := serve(f.router(), "/private", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, message := errorCode(t, rec)
	assert.Equal(t, "TOKEN_REVOKED", code)
	assert.Equal(t, "Token has been invalidated", message)
}

func TestRevocationGateCoversPublicRoutes(t *testing.T) {
	f := newGateFixture(t)
	token := f.accessToken(t, models.RoleStudent)
	r := f.router()

	assert.Equal(t, http.StatusNoContent, serve(r, "/public", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/public", "garbage").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/public", token).Code)

	require.NoError(t, f.store.Revoke(context.Background(), token, time.Now().Add(time.Hour)))
	rec := serve(r, "/public", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "TOKEN_REVOKED", code)
}

func TestRevocationStoreFailureFailsClosed(t *testing.T) {
	f := newGateFixture(t)
	token := f.accessToken(t, models.RoleStudent)
	f.store.err = errors.New("redis down")

	rec := serve(f.router(), "/private", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", code)

	assert.Equal(t, http.StatusInternalServerError, serve(f.router(), "/public", token).Code)
}

func TestAuthenticateWithoutGateChecksRevocation(t *testing.T) {
	f := newGateFixture(t)
	token := f.accessToken(t, models.RoleStudent)
	require.NoError(t, f.store.Revoke(context.Background(), token, time.Now().Add(time.Hour)))

	r := gin.New()
	r.GET("/private", f.gate.Authenticate(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, "/private", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, f.store.lookups)
}
