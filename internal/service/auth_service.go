package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/revocation"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	StartSession(ctx context.Context, userID, refreshHash string, at time.Time) error
	TouchSessionIfCurrent(ctx context.Context, userID, refreshHash string, at time.Time) (*models.User, error)
	ClearRefreshToken(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthService orchestrates login, refresh and logout.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	revoked   revocation.Store
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *TokenService, revoked revocation.Store, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		revoked:   revoked,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnPasswordCheck runs a bcrypt comparison that always fails so unknown emails cost
// as much as wrong passwords.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("campus-analytics-dummy"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

func invalidCredentials() error {
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			burnPasswordCheck(req.Password)
			s.metrics.RecordAuthAttempt("login", AuthOutcomeInvalid)
			return nil, invalidCredentials()
		}
		s.metrics.RecordAuthAttempt("login", AuthOutcomeError)
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordAuthAttempt("login", AuthOutcomeInvalid)
		s.audit(ctx, &models.AuditLog{
			UserID:     &user.ID,
			Action:     models.AuditActionLoginFailed,
			Resource:   models.AuditResourceAuth,
			ResourceID: &user.ID,
			IPAddress:  req.IP,
			UserAgent:  req.UserAgent,
		})
		return nil, invalidCredentials()
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		s.metrics.RecordAuthAttempt("login", AuthOutcomeError)
		return nil, appErrors.Internal(err, "failed to issue tokens")
	}

	// Tokens are only handed out once the refresh hash is stored; otherwise they are dropped.
	if err := s.repo.StartSession(ctx, user.ID, HashToken(pair.RefreshToken), s.now().UTC()); err != nil {
		s.metrics.RecordAuthAttempt("login", AuthOutcomeError)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidCredentials()
		}
		return nil, appErrors.Internal(err, "failed to persist session")
	}

	s.metrics.RecordAuthAttempt("login", AuthOutcomeSuccess)
	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   models.AuditResourceAuth,
		ResourceID: &user.ID,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.LoginResponse{
		User:         user.Summary(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh exchanges the user's current refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	claims, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		s.metrics.RecordAuthAttempt("refresh", AuthOutcomeInvalidToken)
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "Invalid refresh token")
	}

	user, err := s.repo.TouchSessionIfCurrent(ctx, claims.UserID, HashToken(req.RefreshToken), s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthAttempt("refresh", AuthOutcomeInvalidToken)
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "Invalid refresh token")
		}
		s.metrics.RecordAuthAttempt("refresh", AuthOutcomeError)
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if user.RefreshTokenHash == nil || !hashesEqual(*user.RefreshTokenHash, HashToken(req.RefreshToken)) {
		s.metrics.RecordAuthAttempt("refresh", AuthOutcomeInvalidToken)
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "Invalid refresh token")
	}

	access, _, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		s.metrics.RecordAuthAttempt("refresh", AuthOutcomeError)
		return nil, appErrors.Internal(err, "failed to issue access token")
	}

	s.metrics.RecordAuthAttempt("refresh", AuthOutcomeSuccess)
	s.audit(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionRefresh,
		Resource:   models.AuditResourceAuth,
		ResourceID: &user.ID,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.RefreshTokenResponse{AccessToken: access}, nil
}

// Logout clears the user's refresh token and then revokes the presented access token.
// Tokens that fail verification are rejected without touching the revocation set.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if req.AccessToken == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "No token provided")
	}

	claims, err := s.tokens.VerifyAccess(req.AccessToken)
	if err != nil {
		// Such a token can never pass Authenticate, so there is nothing to revoke.
		s.metrics.RecordAuthAttempt("logout", AuthOutcomeInvalidToken)
		return appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}

	// Clear first: if this fails the access token is still usable for a retry.
	if err := s.repo.ClearRefreshToken(ctx, claims.UserID); err != nil {
		return appErrors.Internal(err, "failed to end session")
	}

	if err := s.revoked.Revoke(ctx, req.AccessToken, claims.ExpiresAt.Time); err != nil {
		return appErrors.Internal(err, "failed to revoke token")
	}
	s.metrics.RecordRevocation()

	s.audit(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionLogout,
		Resource:   models.AuditResourceAuth,
		ResourceID: &claims.UserID,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})
	return nil
}

// Me loads the authenticated user's summary.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserSummary, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	summary := user.Summary()
	return &summary, nil
}

func (s *AuthService) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
