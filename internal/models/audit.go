package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLoginFailed     = "LOGIN_FAILED"
	AuditActionLogout          = "LOGOUT"
	AuditActionRefresh         = "TOKEN_REFRESH"
	AuditActionUserCreate      = "USER_CREATE"
	AuditActionUserDelete      = "USER_DELETE"
	AuditActionProfileUpdate   = "PROFILE_UPDATE"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionResourceUpload  = "RESOURCE_UPLOAD"
	AuditActionResourceDelete  = "RESOURCE_DELETE"
	AuditActionAnalyticsExport = "ANALYTICS_EXPORT"
)

// Audited resource kinds.
const (
	AuditResourceAuth      = "auth"
	AuditResourceUser      = "user"
	AuditResourceResource  = "resource"
	AuditResourceAnalytics = "analytics"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	Metadata   *string   `db:"metadata" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
