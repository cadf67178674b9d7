package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/repository"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

type settingsRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetSettings(ctx context.Context, id string) (*models.User, models.UserSettings, error)
	UpdateProfile(ctx context.Context, id string, name, email, department *string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	MergeSettings(ctx context.Context, id string, patch map[string]interface{}) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SettingsService manages a user's own profile and preferences.
type SettingsService struct {
	repo      settingsRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(repo settingsRepository, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &SettingsService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// Get returns the profile with its settings flags.
func (s *SettingsService) Get(ctx context.Context, userID string) (*models.SettingsView, error) {
	user, settings, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Internal(err, "failed to load settings")
	}
	return &models.SettingsView{
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		Department:   user.Department,
		UserSettings: settings,
	}, nil
}

// UpdateProfile edits profile fields. Changing the password needs the current one and ends
// the stored refresh session.
func (s *SettingsService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.SettingsView, error) {
	if req.Email != nil {
		normalized := normalizeEmail(*req.Email)
		req.Email = &normalized
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}

	var newHash []byte
	if req.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Current password is incorrect")
		}
		newHash, err = bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to hash password")
		}
	}

	if req.Name != nil || req.Email != nil || req.Department != nil {
		if err := s.repo.UpdateProfile(ctx, userID, req.Name, req.Email, req.Department); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicate):
				return nil, appErrors.Clone(appErrors.ErrConflict, "Email is already in use")
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
			}
			return nil, appErrors.Internal(err, "failed to update profile")
		}
		s.audit(ctx, userID, models.AuditActionProfileUpdate, req.IP, req.UserAgent)
	}

	if newHash != nil {
		if err := s.repo.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
			return nil, appErrors.Internal(err, "failed to update password")
		}
		s.audit(ctx, userID, models.AuditActionPasswordChange, req.IP, req.UserAgent)
	}

	return s.Get(ctx, userID)
}

// UpdateSettings merges the provided flags into the stored settings document.
func (s *SettingsService) UpdateSettings(ctx context.Context, userID string, req models.UpdateSettingsRequest) (*models.SettingsView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	patch := settingsPatch(req)
	if len(patch) > 0 {
		if err := s.repo.MergeSettings(ctx, userID, patch); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
			}
			return nil, appErrors.Internal(err, "failed to update settings")
		}
	}
	return s.Get(ctx, userID)
}

func settingsPatch(req models.UpdateSettingsRequest) map[string]interface{} {
	patch := make(map[string]interface{})
	setBool := func(key string, v *bool) {
		if v != nil {
			patch[key] = *v
		}
	}
	setBool("analyticsEnabled", req.Preferences.AnalyticsEnabled)
	setBool("autoDownloadEnabled", req.Preferences.AutoDownloadEnabled)
	setBool("emailNotifications", req.Notifications.EmailNotifications)
	setBool("activityUpdates", req.Notifications.ActivityUpdates)
	setBool("newResourceAlerts", req.Notifications.NewResourceAlerts)
	setBool("publicProfile", req.Privacy.PublicProfile)
	setBool("activityVisible", req.Privacy.ActivityVisible)
	if req.Privacy.DataRetention != nil {
		patch["dataRetention"] = *req.Privacy.DataRetention
	}
	return patch
}

func (s *SettingsService) audit(ctx context.Context, userID, action, ip, userAgent string) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   models.AuditResourceUser,
		ResourceID: &userID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
