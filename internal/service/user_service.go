package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/repository"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

const (
	activeWindow = 10 * time.Minute
	awayWindow   = time.Hour
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	TouchLastActive(ctx context.Context, id string, at time.Time) (*models.User, error)
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService handles user administration.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns users annotated with presence, most recently active first.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserListItem, *models.Pagination, error) {
	filter.Page, filter.Limit = pageBounds(filter.Page, filter.Limit, 20)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	now := s.now()
	items := make([]models.UserListItem, 0, len(users))
	for i := range users {
		items = append(items, s.listItem(&users[i], now))
	}
	return items, models.NewPagination(total, filter.Page, filter.Limit), nil
}

// Create provisions a new account.
func (s *UserService) Create(ctx context.Context, req models.CreateUserRequest, actorID string) (*models.UserListItem, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	role, _ := models.ParseRole(req.Role)
	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		Department:   strings.TrimSpace(req.Department),
		LastActive:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "User with this email already exists")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	s.audit(ctx, actorID, models.AuditActionUserCreate, user.ID)
	item := s.listItem(user, s.now())
	return &item, nil
}

// UpdateStatus records presence for a user. Active touches last_active; other values leave it.
func (s *UserService) UpdateStatus(ctx context.Context, id string, req models.UpdateUserStatusRequest) (*models.UserListItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	var (
		user *models.User
		err  error
	)
	if req.Status == models.PresenceActive {
		user, err = s.repo.TouchLastActive(ctx, id, s.now().UTC())
	} else {
		user, err = s.repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Internal(err, "failed to update user status")
	}

	item := s.listItem(user, s.now())
	return &item, nil
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, id, actorID string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Internal(err, "failed to delete user")
	}
	s.audit(ctx, actorID, models.AuditActionUserDelete, id)
	return nil
}

func (s *UserService) listItem(u *models.User, now time.Time) models.UserListItem {
	return models.UserListItem{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		Status:     presence(now.Sub(u.LastActive)),
		LastActive: humanizeSince(now.Sub(u.LastActive)),
		LastSeenAt: u.LastActive,
	}
}

func (s *UserService) audit(ctx context.Context, actorID, action, targetID string) {
	entry := &models.AuditLog{Action: action, Resource: models.AuditResourceUser, ResourceID: &targetID}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func presence(idle time.Duration) string {
	switch {
	case idle < activeWindow:
		return models.PresenceActive
	case idle < awayWindow:
		return models.PresenceAway
	default:
		return models.PresenceInactive
	}
}

func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "min")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func pageBounds(page, limit, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = fallback
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
