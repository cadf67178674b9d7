package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func newSettingsFixture(t *testing.T) (*SettingsService, *mockUserRepo) {
	t.Helper()
	hash := strPtr("refresh-hash")
	repo := newMockUserRepo(
		&models.User{ID: "u1", Name: "Ada", Email: "ada@campus.edu", Role: models.RoleResearcher, PasswordHash: hashPassword(t, "old-password"), RefreshTokenHash: hash},
		&models.User{ID: "u2", Name: "Bob", Email: "bob@campus.edu", Role: models.RoleStudent},
	)
	return NewSettingsService(repo, nil, zap.NewNop()), repo
}

func TestSettingsGetDefaults(t *testing.T) {
	svc, _ := newSettingsFixture(t)

	view, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.Name)
	assert.True(t, view.EmailNotifications)
	assert.False(t, view.AnalyticsEnabled)
	assert.Equal(t, models.Retention6Months, view.DataRetention)

	_, err = svc.Get(context.Background(), "ghost")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func TestUpdateProfileFields(t *testing.T) {
	svc, repo := newSettingsFixture(t)

	view, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{
		Name:  strPtr("  Ada Lovelace "),
		Email: strPtr("ADA@Campus.edu"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", view.Name)
	assert.Equal(t, "ada@campus.edu", view.Email)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionProfileUpdate, repo.auditLogs[0].Action)
}

func TestUpdateProfileDuplicateEmail(t *testing.T) {
	svc, _ := newSettingsFixture(t)

	_, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{Email: strPtr("bob@campus.edu")})
	requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
}

func TestUpdateProfilePasswordNeedsCurrent(t *testing.T) {
	svc, repo := newSettingsFixture(t)

	_, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{NewPassword: "new-password"})
	appErr := requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)
	assert.Contains(t, appErr.Message, "currentPassword is required")

	_, err = svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{CurrentPassword: "wrong", NewPassword: "new-password"})
	requireAppError(t, err, appErrors.ErrInvalidCredentials.Code, http.StatusUnauthorized)
	assert.NotNil(t, repo.users["u1"].RefreshTokenHash)
}

func TestUpdateProfilePasswordChangeEndsSession(t *testing.T) {
	svc, repo := newSettingsFixture(t)

	_, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{CurrentPassword: "old-password", NewPassword: "new-password"})
	require.NoError(t, err)

	u := repo.users["u1"]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("new-password")))
	assert.Nil(t, u.RefreshTokenHash)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionPasswordChange, repo.auditLogs[0].Action)
}

func TestUpdateSettingsMergesPresentKeysOnly(t *testing.T) {
	svc, repo := newSettingsFixture(t)

	view, err := svc.UpdateSettings(context.Background(), "u1", models.UpdateSettingsRequest{
		Preferences: models.PreferenceSettings{AnalyticsEnabled: boolPtr(true)},
		Privacy:     models.PrivacySettings{DataRetention: strPtr(models.Retention1Year)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"analyticsEnabled": true, "dataRetention": "1year"}, repo.merged)
	assert.True(t, view.AnalyticsEnabled)
	assert.Equal(t, models.Retention1Year, view.DataRetention)
}

func TestUpdateSettingsRejectsUnknownRetention(t *testing.T) {
	svc, repo := newSettingsFixture(t)

	_, err := svc.UpdateSettings(context.Background(), "u1", models.UpdateSettingsRequest{
		Privacy: models.PrivacySettings{DataRetention: strPtr("decade")},
	})
	requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)
	assert.Nil(t, repo.merged)
}
