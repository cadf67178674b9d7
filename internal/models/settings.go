package models

// Data retention choices offered on the privacy screen.
const (
	Retention3Months = "3months"
	Retention6Months = "6months"
	Retention1Year   = "1year"
	RetentionForever = "forever"
)

// UserSettings mirrors the users.settings jsonb document.
type UserSettings struct {
	AnalyticsEnabled    bool   `json:"analyticsEnabled"`
	AutoDownloadEnabled bool   `json:"autoDownloadEnabled"`
	EmailNotifications  bool   `json:"emailNotifications"`
	ActivityUpdates     bool   `json:"activityUpdates"`
	NewResourceAlerts   bool   `json:"newResourceAlerts"`
	PublicProfile       bool   `json:"publicProfile"`
	ActivityVisible     bool   `json:"activityVisible"`
	DataRetention       string `json:"dataRetention"`
}

// DefaultUserSettings matches the column default of users.settings.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		EmailNotifications: true,
		ActivityUpdates:    true,
		ActivityVisible:    true,
		DataRetention:      Retention6Months,
	}
}

// SettingsView combines the profile with the settings flags.
type SettingsView struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	Department string   `json:"department"`
	UserSettings
}

// UpdateProfileRequest edits profile fields and optionally the password.
type UpdateProfileRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=2,max=255"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Department      *string `json:"department" validate:"omitempty,max=255"`
	CurrentPassword string  `json:"currentPassword" validate:"required_with=NewPassword"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,min=8,max=72"`
	IP              string  `json:"-"`
	UserAgent       string  `json:"-"`
}

// PreferenceSettings is the preferences section of the settings screen.
type PreferenceSettings struct {
	AnalyticsEnabled    *bool `json:"analyticsEnabled,omitempty"`
	AutoDownloadEnabled *bool `json:"autoDownloadEnabled,omitempty"`
}

// NotificationSettings is the notifications section of the settings screen.
type NotificationSettings struct {
	EmailNotifications *bool `json:"emailNotifications,omitempty"`
	ActivityUpdates    *bool `json:"activityUpdates,omitempty"`
	NewResourceAlerts  *bool `json:"newResourceAlerts,omitempty"`
}

// PrivacySettings is the privacy section of the settings screen.
type PrivacySettings struct {
	PublicProfile   *bool   `json:"publicProfile,omitempty"`
	ActivityVisible *bool   `json:"activityVisible,omitempty"`
	DataRetention   *string `json:"dataRetention,omitempty" validate:"omitempty,oneof=3months 6months 1year forever"`
}

// UpdateSettingsRequest carries a partial settings document. Only present keys are merged.
type UpdateSettingsRequest struct {
	Preferences   PreferenceSettings   `json:"preferences"`
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
}
