package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleFaculty    UserRole = "faculty"
	RoleStaff      UserRole = "staff"
	RoleStudent    UserRole = "student"
	RoleResearcher UserRole = "researcher"
)

// Roles lists every assignable role.
var Roles = []UserRole{RoleAdmin, RoleFaculty, RoleStaff, RoleStudent, RoleResearcher}

// ParseRole normalises raw into a known role.
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range Roles {
		if r == role {
			return role, true
		}
	}
	return "", false
}

// User represents an application user stored in the users table.
type User struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	Role             UserRole  `db:"role" json:"role"`
	Department       string    `db:"department" json:"department"`
	RefreshTokenHash *string   `db:"refresh_token_hash" json:"-"`
	LastActive       time.Time `db:"last_active" json:"lastActive"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary strips credentials and bookkeeping from the record.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
	}
}

// UserSummary is the public projection returned by auth endpoints.
type UserSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	Department string   `json:"department"`
}

// Presence states derived from last activity.
const (
	PresenceActive   = "Active"
	PresenceAway     = "Away"
	PresenceInactive = "Inactive"
)

// UserListItem is a user row as shown on the administration screen.
type UserListItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       UserRole  `json:"role"`
	Department string    `json:"department"`
	Status     string    `json:"status"`
	LastActive string    `json:"lastActive"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role   *UserRole
	Search string
	Page   int
	Limit  int
}

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"required,oneof=admin faculty staff student researcher"`
	Department string `json:"department" validate:"max=255"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateUserStatusRequest marks a user as active (touching last_active) or records a status change.
type UpdateUserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active Away Inactive"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(total, page, limit int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}
