package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusshare/analytics-api/internal/models"
)

func testWindow() models.Window {
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	return models.Window{From: to.AddDate(0, 0, -7), To: to}
}

func TestPeriodTotalsWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	w := testWindow()

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS downloads, COUNT\(DISTINCT d.user_id\) AS active_users.* AND r.mime_type LIKE \$3 AND u.role = \$4`).
		WithArgs(w.From, w.To, "video/%", "student").
		WillReturnRows(sqlmock.NewRows([]string{"downloads", "active_users", "new_resources"}).AddRow(40, 12, 3))

	totals, err := repo.PeriodTotals(context.Background(), w, models.AnalyticsFilter{ContentType: "video", UserRole: "student"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodTotals{Downloads: 40, ActiveUsers: 12, NewResource: 3}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodTotalsAllFiltersIgnored(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	w := testWindow()

	mock.ExpectQuery(`d.status = 'completed'$`).
		WithArgs(w.From, w.To).
		WillReturnRows(sqlmock.NewRows([]string{"downloads", "active_users", "new_resources"}).AddRow(0, 0, 0))

	_, err := repo.PeriodTotals(context.Background(), w, models.AnalyticsFilter{ContentType: "all", UserRole: "all"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalResources(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM resources WHERE mime_type LIKE \$1`).
		WithArgs("image/%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	total, err := repo.TotalResources(context.Background(), models.AnalyticsFilter{ContentType: "image"})
	require.NoError(t, err)
	assert.Equal(t, 9, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyDownloads(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	w := testWindow()

	mock.ExpectQuery(`FROM generate_series`).
		WithArgs(w.From, w.To).
		WillReturnRows(sqlmock.NewRows([]string{"day", "downloads"}).
			AddRow(w.From, 0).
			AddRow(w.From.AddDate(0, 0, 1), 5))

	points, err := repo.DailyDownloads(context.Background(), w, models.AnalyticsFilter{})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 5, points[1].Downloads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourlyCountsError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(`EXTRACT\(HOUR FROM d.download_date\)`).WillReturnError(errors.New("timeout"))

	_, err := repo.HourlyCounts(context.Background(), testWindow(), models.AnalyticsFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query hourly downloads")
}

func TestGeoBreakdownLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(`GROUP BY 1 ORDER BY downloads DESC LIMIT 5`).
		WillReturnRows(sqlmock.NewRows([]string{"region", "downloads"}).AddRow("Jakarta", 8).AddRow("Unknown", 2))

	points, err := repo.GeoBreakdown(context.Background(), testWindow(), models.AnalyticsFilter{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []models.GeoPoint{{Region: "Jakarta", Downloads: 8}, {Region: "Unknown", Downloads: 2}}, points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleEngagement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(`u.role IS NOT NULL GROUP BY u.role`).
		WillReturnRows(sqlmock.NewRows([]string{"role", "downloads", "users"}).AddRow("student", 30, 10))

	rows, err := repo.RoleEngagement(context.Background(), testWindow(), models.AnalyticsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.RoleStudent, rows[0].Role)
	assert.Equal(t, 10, rows[0].Users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularResourcesSpansBothWindows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)
	current := testWindow()
	previous := models.Window{From: current.From.AddDate(0, 0, -7), To: current.From}

	mock.ExpectQuery(`WHERE d.download_date >= \$3 AND d.download_date < \$2 .* AND u.role = \$4 GROUP BY .* LIMIT 10`).
		WithArgs(current.From, current.To, previous.From, "faculty").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "mime_type", "created_at", "author", "downloads", "previous_downloads"}).
			AddRow("r1", "Syllabus", "application/pdf", current.From, "Ada", 12, 4))

	resources, err := repo.PopularResources(context.Background(), current, previous, models.AnalyticsFilter{UserRole: "faculty"}, 10)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, 12, resources[0].Downloads)
	assert.Equal(t, 4, resources[0].PrevDownload)
	assert.NoError(t, mock.ExpectationsWereMet())
}
