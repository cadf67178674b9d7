package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusshare/analytics-api/internal/models"
)

const resourceColumns = `r.id, r.title, r.description, r.storage_key, r.file_name, r.file_size, r.mime_type, r.uploaded_by, u.name AS author_name, r.download_count, r.metadata, r.created_at, r.updated_at`

// ResourceRepository persists resource metadata and download history.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository creates a new ResourceRepository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Search returns matching resources, newest first, with the total match count.
func (r *ResourceRepository) Search(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	where := " WHERE 1=1"
	var args []interface{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (r.title ILIKE $%d OR r.description ILIKE $%d OR r.file_name ILIKE $%d)", n, n, n)
	}
	if t := strings.TrimSpace(filter.Type); t != "" && t != "all" {
		args = append(args, escapeLike(strings.ToLower(t))+"/%")
		where += fmt.Sprintf(" AND r.mime_type LIKE $%d", len(args))
	}

	page, limit := normalizePage(filter.Page, filter.Limit, 10)
	offset := (page - 1) * limit

	listQuery := fmt.Sprintf("SELECT %s FROM resources r LEFT JOIN users u ON u.id = r.uploaded_by%s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", resourceColumns, where, limit, offset)
	resources := make([]models.Resource, 0)
	if err := r.db.SelectContext(ctx, &resources, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("search resources: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM resources r"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count resources: %w", err)
	}
	return resources, total, nil
}

// FindByID returns a resource with its uploader's name.
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources r LEFT JOIN users u ON u.id = r.uploaded_by WHERE r.id = $1`
	var res models.Resource
	if err := r.db.GetContext(ctx, &res, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find resource: %w", err)
	}
	return &res, nil
}

// Create inserts the resource row.
func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	metadata := "{}"
	if len(res.Metadata) > 0 {
		metadata = string(res.Metadata)
	}

	const query = `INSERT INTO resources (id, title, description, storage_key, file_name, file_size, mime_type, uploaded_by, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		res.ID, res.Title, res.Description, res.StorageKey, res.FileName, res.FileSize, res.MimeType,
		res.UploadedBy, metadata, res.CreatedAt, res.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// Delete removes the resource row; downloads cascade.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return requireAffected(res)
}

// RecordDownload inserts the download row and bumps the resource counter atomically.
func (r *ResourceRepository) RecordDownload(ctx context.Context, d *models.Download) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DownloadDate.IsZero() {
		d.DownloadDate = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = models.DownloadCompleted
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin download tx: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE resources SET download_count = download_count + 1, updated_at = $2 WHERE id = $1`, d.ResourceID, d.DownloadDate)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("increment download count: %w", err)
	}
	if err := requireAffected(res); err != nil {
		_ = tx.Rollback()
		return err
	}

	const insert = `INSERT INTO downloads (id, resource_id, user_id, ip_address, user_agent, bytes_transferred, status, country, city, download_date)
        VALUES (:id, :resource_id, :user_id, :ip_address, :user_agent, :bytes_transferred, :status, :country, :city, :download_date)`
	if _, err := tx.NamedExecContext(ctx, insert, d); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert download: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit download tx: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
