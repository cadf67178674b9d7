package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

const (
	analyticsCachePattern = "analytics:*"
	topResourcesLimit     = 5
	topRegionsLimit       = 5
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	PeriodTotals(ctx context.Context, w models.Window, f models.AnalyticsFilter) (models.PeriodTotals, error)
	TotalResources(ctx context.Context, f models.AnalyticsFilter) (int, error)
	DailyDownloads(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.TimeseriesPoint, error)
	HourlyCounts(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.HourCount, error)
	GeoBreakdown(ctx context.Context, w models.Window, f models.AnalyticsFilter, limit int) ([]models.GeoPoint, error)
	RoleEngagement(ctx context.Context, w models.Window, f models.AnalyticsFilter) ([]models.RoleEngagement, error)
	PopularResources(ctx context.Context, current, previous models.Window, f models.AnalyticsFilter, limit int) ([]models.PopularResource, error)
}

// AnalyticsService computes dashboard statistics with cache integration.
type AnalyticsService struct {
	repo      AnalyticsRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// Stats returns the dashboard payload. The boolean reports whether it came from cache.
func (s *AnalyticsService) Stats(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsStats, bool, error) {
	filter = normalizeAnalyticsFilter(filter)
	if err := s.validator.Struct(filter); err != nil {
		return nil, false, validationError(err)
	}

	cacheKey := makeAnalyticsCacheKey("stats", filter.DateRange, filter.ContentType, filter.UserRole)
	var cached models.AnalyticsStats
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}

	stats, err := s.compute(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, cacheKey, stats, 0)
	return stats, false, nil
}

// Timeseries returns the daily download series on its own, used by exports.
func (s *AnalyticsService) Timeseries(ctx context.Context, filter models.AnalyticsFilter) ([]models.TimeseriesPoint, models.Window, error) {
	filter = normalizeAnalyticsFilter(filter)
	if err := s.validator.Struct(filter); err != nil {
		return nil, models.Window{}, validationError(err)
	}
	current, _ := s.windows(filter)
	start := time.Now()
	points, err := s.repo.DailyDownloads(ctx, current, filter)
	if err != nil {
		return nil, current, appErrors.Internal(err, "failed to load download timeseries")
	}
	s.metrics.ObserveDBQuery("analytics_timeseries", time.Since(start))
	return points, current, nil
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func (s *AnalyticsService) compute(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsStats, error) {
	current, previous := s.windows(filter)
	start := time.Now()

	curTotals, err := s.repo.PeriodTotals(ctx, current, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	prevTotals, err := s.repo.PeriodTotals(ctx, previous, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	resources, err := s.repo.TotalResources(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	timeseries, err := s.repo.DailyDownloads(ctx, current, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	hours, err := s.repo.HourlyCounts(ctx, current, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	geo, err := s.repo.GeoBreakdown(ctx, current, filter, topRegionsLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	roles, err := s.repo.RoleEngagement(ctx, current, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	popular, err := s.repo.PopularResources(ctx, current, previous, filter, topResourcesLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load analytics")
	}
	s.metrics.ObserveDBQuery("analytics_stats", time.Since(start))

	curEngagement := ratio(curTotals.Downloads, curTotals.ActiveUsers)
	prevEngagement := ratio(prevTotals.Downloads, prevTotals.ActiveUsers)

	for i := range roles {
		roles[i].Name = roleLabel(roles[i].Role)
		roles[i].Engagement = ratio(roles[i].Downloads, roles[i].Users)
	}
	for i := range popular {
		p := &popular[i]
		p.Type = resourceKind(p.MimeType)
		p.PublishDate = p.CreatedAt.Format("Jan 2, 2006")
		p.Trend, p.TrendPercent = trend(p.Downloads, p.PrevDownload)
	}

	return &models.AnalyticsStats{
		Overview: models.AnalyticsOverview{
			TotalDownloads:    curTotals.Downloads,
			TotalResources:    resources,
			ActiveUsers:       curTotals.ActiveUsers,
			AverageEngagement: curEngagement,
			DownloadChange:    percentChange(float64(curTotals.Downloads), float64(prevTotals.Downloads)),
			UsersChange:       percentChange(float64(curTotals.ActiveUsers), float64(prevTotals.ActiveUsers)),
			ResourcesChange:   percentChange(float64(curTotals.NewResource), float64(prevTotals.NewResource)),
			EngagementChange:  percentChange(curEngagement, prevEngagement),
		},
		Timeseries:       timeseries,
		GeoData:          geo,
		HourlyDownloads:  hourlyBuckets(hours),
		UserEngagement:   roles,
		PopularResources: popular,
		GeneratedAt:      s.now().UTC(),
	}, nil
}

// windows returns the current window ending now and the equally long window before it.
func (s *AnalyticsService) windows(filter models.AnalyticsFilter) (models.Window, models.Window) {
	to := s.now().UTC()
	length := time.Duration(filter.Days()) * 24 * time.Hour
	current := models.Window{From: to.Add(-length), To: to}
	previous := models.Window{From: current.From.Add(-length), To: current.From}
	return current, previous
}

func normalizeAnalyticsFilter(f models.AnalyticsFilter) models.AnalyticsFilter {
	f.DateRange = strings.ToLower(strings.TrimSpace(f.DateRange))
	if f.DateRange == "" {
		f.DateRange = models.DateRange30d
	}
	f.ContentType = strings.ToLower(strings.TrimSpace(f.ContentType))
	if f.ContentType == "" {
		f.ContentType = "all"
	}
	f.UserRole = strings.ToLower(strings.TrimSpace(f.UserRole))
	if f.UserRole == "" {
		f.UserRole = "all"
	}
	return f
}

type hourRange struct {
	name  string
	label string
	from  int
	to    int
}

var dayParts = []hourRange{
	{name: "morning", label: "Morning (9am-1pm)", from: 9, to: 13},
	{name: "afternoon", label: "Afternoon (1pm-5pm)", from: 13, to: 17},
	{name: "evening", label: "Evening (5pm-9pm)", from: 17, to: 21},
}

// hourlyBuckets folds per-hour counts into day parts as percentages. Hours outside the
// named parts count as night.
func hourlyBuckets(counts []models.HourCount) []models.HourlyBucket {
	totals := make([]int, len(dayParts)+1)
	var all int
	for _, c := range counts {
		all += c.Downloads
		idx := len(dayParts)
		for i, part := range dayParts {
			if c.Hour >= part.from && c.Hour < part.to {
				idx = i
				break
			}
		}
		totals[idx] += c.Downloads
	}

	buckets := make([]models.HourlyBucket, 0, len(totals))
	for i, part := range dayParts {
		buckets = append(buckets, models.HourlyBucket{Name: part.name, Time: part.label, Value: share(totals[i], all)})
	}
	buckets = append(buckets, models.HourlyBucket{Name: "night", Time: "Night (9pm-9am)", Value: share(totals[len(dayParts)], all)})
	return buckets
}

func roleLabel(role models.UserRole) string {
	switch role {
	case models.RoleStudent:
		return "Students"
	case models.RoleFaculty:
		return "Faculty"
	case models.RoleStaff:
		return "Staff"
	case models.RoleResearcher:
		return "Research Scholars"
	case models.RoleAdmin:
		return "Administrators"
	default:
		return string(role)
	}
}

func resourceKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.Contains(mimeType, "presentation"), strings.Contains(mimeType, "powerpoint"):
		return "presentation"
	case strings.Contains(mimeType, "spreadsheet"), strings.Contains(mimeType, "excel"):
		return "spreadsheet"
	default:
		return "document"
	}
}

// trend compares downloads with the previous window. Moves under one percent are stable.
func trend(current, previous int) (string, float64) {
	change := percentChange(float64(current), float64(previous))
	switch {
	case change >= 1:
		return "up", change
	case change <= -1:
		return "down", math.Abs(change)
	default:
		return "stable", 0
	}
}

func percentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return round1((current - previous) / previous * 100)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return round1(float64(a) / float64(b))
}

func share(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
