package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/revocation"
	"github.com/campusshare/analytics-api/internal/service"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing access token claims.
	ContextUserKey = "currentUser"
	// ContextTokenKey holds the raw bearer token of an authenticated request.
	ContextTokenKey = "accessToken"

	revocationCheckedKey = "revocationChecked"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (*models.AccessClaims, error)
}

// Gate bundles what the token middlewares need.
type Gate struct {
	verifier AccessVerifier
	revoked  revocation.Store
	metrics  *service.MetricsService
	logger   *zap.Logger
}

// NewGate builds the token gate.
func NewGate(verifier AccessVerifier, revoked revocation.Store, metrics *service.MetricsService, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, revoked: revoked, metrics: metrics, logger: logger}
}

// RevocationGate turns away revoked bearer tokens on every route it wraps, public or not.
// Requests without a bearer token pass through untouched.
func (g *Gate) RevocationGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}
		if !g.admit(c, token) {
			return
		}
		c.Next()
	}
}

// Authenticate requires a valid, unrevoked access token. Revocation is consulted before the
// signature so a logged out token is rejected as revoked even after it expires.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, err)
			return
		}
		if checked, _ := c.Get(revocationCheckedKey); checked != token {
			if !g.admit(c, token) {
				return
			}
		}

		claims, err := g.verifier.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				response.Abort(c, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "Token expired"))
				return
			}
			response.Abort(c, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message))
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// admit aborts the request and returns false when token is revoked or the store cannot answer.
func (g *Gate) admit(c *gin.Context, token string) bool {
	revoked, err := g.revoked.IsRevoked(c.Request.Context(), token)
	if err != nil {
		g.logger.Error("revocation lookup failed", zap.Error(err))
		response.Abort(c, appErrors.Internal(err, "failed to check token status"))
		return false
	}
	if revoked {
		g.metrics.RecordRevokedRejection()
		response.Abort(c, appErrors.Clone(appErrors.ErrTokenRevoked, ""))
		return false
	}
	c.Set(revocationCheckedKey, token)
	return true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "No token provided")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// CurrentClaims returns the claims set by Authenticate.
func CurrentClaims(c *gin.Context) (*models.AccessClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.AccessClaims)
	return claims, ok && claims != nil
}

// CurrentToken returns the raw bearer token accepted by Authenticate.
func CurrentToken(c *gin.Context) string {
	return c.GetString(ContextTokenKey)
}
