package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campusshare/analytics-api/internal/models"
)

const downloadJoins = ` FROM downloads d JOIN resources r ON r.id = d.resource_id LEFT JOIN users u ON u.id = d.user_id`

// AnalyticsRepository exposes read-optimised queries over the downloads table.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// downloadScope restricts completed downloads to [from, to) plus the optional filters.
// Window bounds are always $1 and $2.
func downloadScope(w models.Window, f models.AnalyticsFilter) (string, []interface{}) {
	args := []interface{}{w.From, w.To}
	var b strings.Builder
	b.WriteString(downloadJoins)
	b.WriteString(" WHERE d.download_date >= $1 AND d.download_date < $2 AND d.status = 'completed'")
	appendFilters(&b, &args, f)
	return b.String(), args
}

func appendFilters(b *strings.Builder, args *[]interface{}, f models.AnalyticsFilter) {
	if f.ContentType != "" && f.ContentType != "all" {
		*args = append(*args, f.ContentType+"/%")
		fmt.Fprintf(b, " AND r.mime_type LIKE $%d", len(*args))
	}
	if f.UserRole != "" && f.UserRole != "all" {
		*args = append(*args, f.UserRole)
		fmt.Fprintf(b, " AND u.role = $%d", len(*args))
	}
}

// PeriodTotals counts downloads, distinct downloaders and new uploads inside w.
func (r *AnalyticsRepository) PeriodTotals(ctx context.Context, w models.Window, f models.AnalyticsFilter) (models.PeriodTotals, error) {
	scope, args := downloadScope(w, f)
	query := `SELECT COUNT(*) AS downloads, COUNT(DISTINCT d.user_id) AS active_users,
        (SELECT COUNT(*) FROM resources nr WHERE nr.created_at >= $1 AND nr.created_at < $2) AS new_resources` + scope

	var totals models.PeriodTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return totals, fmt.Errorf("query period totals: %w", err)
	}
	return totals, nil
}

// TotalResources counts catalogued resources, optionally by mime major type.
func (r *AnalyticsRepository) TotalResources(ctx context.Context, f models.AnalyticsFilter) (int, error) {
	query := `SELECT COUNT(*) FROM resources`
	var args []interface{}
	if f.ContentType != "" && f.ContentType != "all" {
		args = append(args, f.ContentType+"/%")
		query += " WHERE mime_type LIKE $1"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return total, nil
}

// DailyDownloads returns one point per day in w, zero filled.
func (r *AnalyticsRepository) DailyDownloads(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.TimeseriesPoint, error) {
	scope, args := downloadScope(w, f)
	query := `SELECT days.day AS day, COALESCE(counts.downloads, 0) AS downloads
        FROM generate_series(date_trunc('day', $1::timestamptz), date_trunc('day', $2::timestamptz - interval '1 microsecond'), interval '1 day') AS days(day)
        LEFT JOIN (SELECT date_trunc('day', d.download_date) AS day, COUNT(*) AS downloads` + scope + ` GROUP BY 1) counts ON counts.day = days.day
        ORDER BY days.day`

	points := make([]models.TimeseriesPoint, 0)
	if err := r.db.SelectContext(ctx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("query daily downloads: %w", err)
	}
	return points, nil
}

// HourlyCounts returns raw download counts per hour of day.
func (r *AnalyticsRepository) HourlyCounts(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.HourCount, error) {
	scope, args := downloadScope(w, f)
	query := `SELECT EXTRACT(HOUR FROM d.download_date)::int AS hour, COUNT(*) AS downloads` + scope + ` GROUP BY 1 ORDER BY 1`

	counts := make([]models.HourCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("query hourly downloads: %w", err)
	}
	return counts, nil
}

// GeoBreakdown returns the locations with the most downloads.
func (r *AnalyticsRepository) GeoBreakdown(ctx context.Context, w models.Window, f models.AnalyticsFilter, limit int) ([]models.GeoPoint, error) {
	scope, args := downloadScope(w, f)
	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(d.city, ''), NULLIF(d.country, ''), 'Unknown') AS region, COUNT(*) AS downloads%s GROUP BY 1 ORDER BY downloads DESC LIMIT %d`, scope, limit)

	points := make([]models.GeoPoint, 0)
	if err := r.db.SelectContext(ctx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("query geo breakdown: %w", err)
	}
	return points, nil
}

// RoleEngagement groups downloads by the downloader's role.
func (r *AnalyticsRepository) RoleEngagement(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.RoleEngagement, error) {
	scope, args := downloadScope(w, f)
	query := `SELECT u.role AS role, COUNT(*) AS downloads, COUNT(DISTINCT d.user_id) AS users` + scope + ` AND u.role IS NOT NULL GROUP BY u.role ORDER BY downloads DESC`

	rows := make([]models.RoleEngagement, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query role engagement: %w", err)
	}
	return rows, nil
}

// PopularResources ranks resources by downloads in current and reports the previous
// window's count alongside for trend calculation.
func (r *AnalyticsRepository) PopularResources(ctx context.Context, current, previous models.Window, f models.AnalyticsFilter, limit int) ([]models.PopularResource, error) {
	args := []interface{}{current.From, current.To, previous.From}
	var b strings.Builder
	b.WriteString(`SELECT r.id, r.title, r.mime_type, r.created_at, COALESCE(a.name, 'Unknown') AS author,
        COUNT(*) FILTER (WHERE d.download_date >= $1) AS downloads,
        COUNT(*) FILTER (WHERE d.download_date < $1) AS previous_downloads`)
	b.WriteString(downloadJoins)
	b.WriteString(` LEFT JOIN users a ON a.id = r.uploaded_by WHERE d.download_date >= $3 AND d.download_date < $2 AND d.status = 'completed'`)
	appendFilters(&b, &args, f)
	fmt.Fprintf(&b, ` GROUP BY r.id, r.title, r.mime_type, r.created_at, a.name HAVING COUNT(*) FILTER (WHERE d.download_date >= $1) > 0 ORDER BY downloads DESC, r.title LIMIT %d`, limit)

	resources := make([]models.PopularResource, 0)
	if err := r.db.SelectContext(ctx, &resources, b.String(), args...); err != nil {
		return nil, fmt.Errorf("query popular resources: %w", err)
	}
	return resources, nil
}
