package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/repository"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	settings  map[string]models.UserSettings
	lastList  models.UserFilter
	listUsers []models.User
	listTotal int
	auditLogs []*models.AuditLog
	merged    map[string]interface{}
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*models.User), settings: make(map[string]models.UserSettings)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastList = filter
	return m.listUsers, m.listTotal, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = "new-id"
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) TouchLastActive(_ context.Context, id string, at time.Time) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.LastActive = at
	clone := *u
	return &clone, nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) GetSettings(ctx context.Context, id string) (*models.User, models.UserSettings, error) {
	u, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, models.DefaultUserSettings(), err
	}
	s, ok := m.settings[id]
	if !ok {
		s = models.DefaultUserSettings()
	}
	return u, s, nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id string, name, email, department *string) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	if email != nil {
		for _, other := range m.users {
			if other.ID != id && other.Email == *email {
				return repository.ErrDuplicate
			}
		}
		u.Email = *email
	}
	if name != nil {
		u.Name = *name
	}
	if department != nil {
		u.Department = *department
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.RefreshTokenHash = nil
	return nil
}

func (m *mockUserRepo) MergeSettings(_ context.Context, id string, patch map[string]interface{}) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	m.merged = patch
	s := models.DefaultUserSettings()
	if v, ok := patch["analyticsEnabled"].(bool); ok {
		s.AnalyticsEnabled = v
	}
	if v, ok := patch["dataRetention"].(string); ok {
		s.DataRetention = v
	}
	m.settings[id] = s
	return nil
}

func (m *mockUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

var userNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newUserServiceForTest(repo *mockUserRepo) *UserService {
	svc := NewUserService(repo, nil, zap.NewNop())
	svc.now = func() time.Time { return userNow }
	return svc
}

func TestUserListDerivesPresence(t *testing.T) {
	repo := newMockUserRepo()
	repo.listUsers = []models.User{
		{ID: "a", LastActive: userNow.Add(-30 * time.Second)},
		{ID: "b", LastActive: userNow.Add(-9 * time.Minute)},
		{ID: "c", LastActive: userNow.Add(-1 * time.Minute)},
		{ID: "d", LastActive: userNow.Add(-2 * time.Hour)},
		{ID: "e", LastActive: userNow.Add(-73 * time.Hour)},
		{ID: "f", LastActive: userNow.Add(-61 * time.Minute)},
	}
	repo.listTotal = 45
	svc := newUserServiceForTest(repo)

	items, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 2, Limit: 500})
	require.NoError(t, err)

	assert.Equal(t, 100, repo.lastList.Limit)
	assert.Equal(t, &models.Pagination{Total: 45, Page: 2, Limit: 100, Pages: 1}, pagination)

	require.Len(t, items, 6)
	assert.Equal(t, "Active", items[0].Status)
	assert.Equal(t, "Just now", items[0].LastActive)
	assert.Equal(t, "9 mins ago", items[1].LastActive)
	assert.Equal(t, "1 min ago", items[2].LastActive)
	assert.Equal(t, "Inactive", items[3].Status)
	assert.Equal(t, "2 hours ago", items[3].LastActive)
	assert.Equal(t, "3 days ago", items[4].LastActive)
	assert.Equal(t, "Inactive", items[5].Status)
	assert.Equal(t, "1 hour ago", items[5].LastActive)
}

func TestPresenceBoundaries(t *testing.T) {
	assert.Equal(t, models.PresenceActive, presence(10*time.Minute-time.Second))
	assert.Equal(t, models.PresenceAway, presence(10*time.Minute))
	assert.Equal(t, models.PresenceAway, presence(59*time.Minute))
	assert.Equal(t, models.PresenceInactive, presence(time.Hour))
}

func TestUserCreateHashesPassword(t *testing.T) {
	repo := newMockUserRepo()
	svc := newUserServiceForTest(repo)

	item, err := svc.Create(context.Background(), models.CreateUserRequest{
		Name:       "Grace Hopper",
		Email:      "Grace@Campus.edu",
		Role:       "faculty",
		Department: "CS",
		Password:   "supersecret",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "grace@campus.edu", item.Email)
	assert.Equal(t, models.PresenceActive, item.Status)

	stored := repo.users["new-id"]
	require.NotNil(t, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("supersecret")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "u1", Email: "taken@campus.edu"})
	svc := newUserServiceForTest(repo)

	_, err := svc.Create(context.Background(), models.CreateUserRequest{
		Name: "Someone", Email: "taken@campus.edu", Role: "student", Password: "password1",
	}, "admin-1")
	requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)
}

func TestUserCreateValidation(t *testing.T) {
	svc := newUserServiceForTest(newMockUserRepo())

	_, err := svc.Create(context.Background(), models.CreateUserRequest{Name: "X", Email: "bad", Role: "root", Password: "short"}, "")
	appErr := requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)
	assert.Contains(t, appErr.Message, "name must be at least 2 characters")
	assert.Contains(t, appErr.Message, "email must be a valid email")
	assert.Contains(t, appErr.Message, "role must be one of")
	assert.Contains(t, appErr.Message, "password must be at least 8 characters")
}

func TestUserUpdateStatusActiveTouchesLastActive(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "u1", LastActive: userNow.Add(-5 * time.Hour)})
	svc := newUserServiceForTest(repo)

	item, err := svc.UpdateStatus(context.Background(), "u1", models.UpdateUserStatusRequest{Status: "Active"})
	require.NoError(t, err)
	assert.Equal(t, models.PresenceActive, item.Status)
	assert.Equal(t, userNow, repo.users["u1"].LastActive)

	item, err = svc.UpdateStatus(context.Background(), "u1", models.UpdateUserStatusRequest{Status: "Away"})
	require.NoError(t, err)
	assert.Equal(t, models.PresenceActive, item.Status)

	_, err = svc.UpdateStatus(context.Background(), "ghost", models.UpdateUserStatusRequest{Status: "Active"})
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func TestUserDelete(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "u1"})
	svc := newUserServiceForTest(repo)

	require.NoError(t, svc.Delete(context.Background(), "u1", "admin-1"))
	assert.Empty(t, repo.users)

	err := svc.Delete(context.Background(), "u1", "admin-1")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}
