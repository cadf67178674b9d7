package models

import "time"

// Supported analytics windows.
const (
	DateRange7d  = "7d"
	DateRange30d = "30d"
	DateRange90d = "90d"
)

// AnalyticsFilter scopes analytics queries.
type AnalyticsFilter struct {
	DateRange   string `form:"dateRange" json:"dateRange" validate:"omitempty,oneof=7d 30d 90d"`
	ContentType string `form:"contentType" json:"contentType" validate:"omitempty,oneof=all application image video audio text"`
	UserRole    string `form:"userRole" json:"userRole" validate:"omitempty,oneof=all admin faculty staff student researcher"`
}

// Days converts the date range into a window length.
func (f AnalyticsFilter) Days() int {
	switch f.DateRange {
	case DateRange7d:
		return 7
	case DateRange90d:
		return 90
	default:
		return 30
	}
}

// Window is a half-open [From, To) interval.
type Window struct {
	From time.Time
	To   time.Time
}

// AnalyticsOverview holds headline counters and their change against the previous window.
type AnalyticsOverview struct {
	TotalDownloads    int     `json:"totalDownloads"`
	TotalResources    int     `json:"totalResources"`
	ActiveUsers       int     `json:"activeUsers"`
	AverageEngagement float64 `json:"averageEngagement"`
	DownloadChange    float64 `json:"downloadChange"`
	UsersChange       float64 `json:"usersChange"`
	ResourcesChange   float64 `json:"resourcesChange"`
	EngagementChange  float64 `json:"engagementChange"`
}

// PeriodTotals are the raw counters for a single window.
type PeriodTotals struct {
	Downloads   int `db:"downloads"`
	ActiveUsers int `db:"active_users"`
	NewResource int `db:"new_resources"`
}

// TimeseriesPoint is one day of downloads.
type TimeseriesPoint struct {
	Date      time.Time `db:"day" json:"date"`
	Downloads int       `db:"downloads" json:"downloads"`
}

// GeoPoint aggregates downloads by location.
type GeoPoint struct {
	Region    string `db:"region" json:"region"`
	Downloads int    `db:"downloads" json:"downloads"`
}

// HourlyBucket is the share of downloads in a part of the day.
type HourlyBucket struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Time  string  `json:"time"`
}

// HourCount is a raw per-hour download count.
type HourCount struct {
	Hour      int `db:"hour"`
	Downloads int `db:"downloads"`
}

// RoleEngagement aggregates downloads per user role.
type RoleEngagement struct {
	Role       UserRole `db:"role" json:"-"`
	Name       string   `db:"-" json:"name"`
	Downloads  int      `db:"downloads" json:"downloads"`
	Users      int      `db:"users" json:"-"`
	Engagement float64  `db:"-" json:"engagement"`
}

// PopularResource is a top downloaded resource within the window.
type PopularResource struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	MimeType     string    `db:"mime_type" json:"-"`
	Type         string    `db:"-" json:"type"`
	Downloads    int       `db:"downloads" json:"downloads"`
	PrevDownload int       `db:"previous_downloads" json:"-"`
	Author       string    `db:"author" json:"author"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	PublishDate  string    `db:"-" json:"publishDate"`
	Trend        string    `db:"-" json:"trend"`
	TrendPercent float64   `db:"-" json:"trendPercent"`
}

// AnalyticsStats is the dashboard payload.
type AnalyticsStats struct {
	Overview         AnalyticsOverview `json:"overview"`
	Timeseries       []TimeseriesPoint `json:"timeseries"`
	GeoData          []GeoPoint        `json:"geoData"`
	HourlyDownloads  []HourlyBucket    `json:"hourlyDownloads"`
	UserEngagement   []RoleEngagement  `json:"userEngagement"`
	PopularResources []PopularResource `json:"popularResources"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

// ExportRequest asks for a rendered analytics export.
type ExportRequest struct {
	Format  string          `json:"format" validate:"required,oneof=csv pdf"`
	Filters AnalyticsFilter `json:"filters"`
	UserID  string          `json:"-"`
}

// ExportResult points at a rendered export.
type ExportResult struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	LoginSuccesses           uint64    `json:"loginSuccesses"`
	LoginFailures            uint64    `json:"loginFailures"`
	TokensRevoked            uint64    `json:"tokensRevoked"`
	DownloadJobsFailed       uint64    `json:"downloadJobsFailed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
