package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusshare/analytics-api/internal/models"
)

const userColumns = `id, name, email, password_hash, role, department, refresh_token_hash, last_active, created_at, updated_at`

// UserRepository provides database access for users and their session state.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// StartSession stores the refresh token hash and touches last_active in one statement,
// replacing any previous refresh token.
func (r *UserRepository) StartSession(ctx context.Context, userID, refreshHash string, at time.Time) error {
	const query = `UPDATE users SET refresh_token_hash = $2, last_active = $3, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, refreshHash, at)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return requireAffected(res)
}

// TouchSessionIfCurrent updates last_active only when refreshHash is the user's live
// refresh token. It returns sql.ErrNoRows when the user is gone or the token was superseded.
func (r *UserRepository) TouchSessionIfCurrent(ctx context.Context, userID, refreshHash string, at time.Time) (*models.User, error) {
	query := `UPDATE users SET last_active = $3 WHERE id = $1 AND refresh_token_hash = $2 RETURNING ` + userColumns
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, userID, refreshHash, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return &user, nil
}

// ClearRefreshToken ends the stored session. Missing users are not an error.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	const query = `UPDATE users SET refresh_token_hash = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// TouchLastActive marks the user active now.
func (r *UserRepository) TouchLastActive(ctx context.Context, id string, at time.Time) (*models.User, error) {
	query := `UPDATE users SET last_active = $2 WHERE id = $1 RETURNING ` + userColumns
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("touch last active: %w", err)
	}
	return &user, nil
}

// List returns users based on filters with total count, most recently active first.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d OR LOWER(department) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, limit := normalizePage(filter.Page, filter.Limit, 20)
	offset := (page - 1) * limit

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY last_active DESC LIMIT %d OFFSET %d", userColumns, baseQuery, limit, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// Create inserts a new user. ErrDuplicate is returned for a taken email.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.LastActive.IsZero() {
		user.LastActive = now
	}

	const query = `INSERT INTO users (id, name, email, password_hash, role, department, last_active, created_at, updated_at) VALUES (:id, :name, :email, :password_hash, :role, :department, :last_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile changes the non-nil profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, name, email, department *string) error {
	const query = `UPDATE users SET name = COALESCE($2, name), email = COALESCE($3, email), department = COALESCE($4, department), updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, name, email, department, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update profile: %w", err)
	}
	return requireAffected(res)
}

// UpdatePassword stores a new hash and ends the current session.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, refresh_token_hash = NULL, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

// GetSettings loads the user with its settings document applied over the defaults.
func (r *UserRepository) GetSettings(ctx context.Context, id string) (*models.User, models.UserSettings, error) {
	settings := models.DefaultUserSettings()
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, settings, err
	}

	var raw []byte
	if err := r.db.GetContext(ctx, &raw, `SELECT settings FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settings, err
		}
		return nil, settings, fmt.Errorf("load settings: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, settings, fmt.Errorf("decode settings: %w", err)
		}
	}
	return user, settings, nil
}

// MergeSettings shallow merges patch into the settings document.
func (r *UserRepository) MergeSettings(ctx context.Context, id string, patch map[string]interface{}) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const query = `UPDATE users SET settings = settings || $2::jsonb, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	return requireAffected(res)
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, ip_address, user_agent, metadata, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :ip_address, :user_agent, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func normalizePage(page, limit, fallback int) (int, int) {
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
