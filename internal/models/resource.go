package models

import "time"

// Resource is an uploaded file and its catalogue metadata.
type Resource struct {
	ID            string    `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	StorageKey    string    `db:"storage_key" json:"-"`
	FileName      string    `db:"file_name" json:"fileName"`
	FileSize      int64     `db:"file_size" json:"fileSize"`
	MimeType      string    `db:"mime_type" json:"mimeType"`
	UploadedBy    *string   `db:"uploaded_by" json:"uploadedBy,omitempty"`
	AuthorName    *string   `db:"author_name" json:"authorName,omitempty"`
	DownloadCount int       `db:"download_count" json:"downloadCount"`
	Metadata      []byte    `db:"metadata" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// ResourceFilter scopes resource searches.
type ResourceFilter struct {
	Query string
	// Type is a mime major type (application, image, video, audio, text) or empty for all.
	Type  string
	Page  int
	Limit int
}

// ResourceSearchResult is returned by the search endpoint.
type ResourceSearchResult struct {
	Results    []Resource  `json:"results"`
	Pagination *Pagination `json:"pagination"`
}

// UploadResourceInput is assembled by the handler from a multipart request.
type UploadResourceInput struct {
	Title       string
	Description string
	FileName    string
	MimeType    string
	Size        int64
	UploadedBy  string
	IP          string
	UserAgent   string
}

// DownloadStatus enumerates downloads.status.
type DownloadStatus string

const (
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
	DownloadPartial   DownloadStatus = "partial"
)

// Download is one row of downloads.
type Download struct {
	ID               string         `db:"id" json:"id"`
	ResourceID       string         `db:"resource_id" json:"resourceId"`
	UserID           *string        `db:"user_id" json:"userId,omitempty"`
	IPAddress        string         `db:"ip_address" json:"ipAddress"`
	UserAgent        string         `db:"user_agent" json:"userAgent"`
	BytesTransferred int64          `db:"bytes_transferred" json:"bytesTransferred"`
	Status           DownloadStatus `db:"status" json:"status"`
	Country          *string        `db:"country" json:"country,omitempty"`
	City             *string        `db:"city" json:"city,omitempty"`
	DownloadDate     time.Time      `db:"download_date" json:"downloadDate"`
}
