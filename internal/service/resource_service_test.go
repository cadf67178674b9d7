package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/jobs"
	"github.com/campusshare/analytics-api/pkg/storage"
)

type mockResourceRepo struct {
	resources map[string]*models.Resource
	downloads []models.Download
	createErr error
	recordErr error
}

func (m *mockResourceRepo) Search(_ context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	out := make([]models.Resource, 0)
	for _, r := range m.resources {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockResourceRepo) FindByID(_ context.Context, id string) (*models.Resource, error) {
	r, ok := m.resources[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *r
	return &clone, nil
}

func (m *mockResourceRepo) Create(_ context.Context, res *models.Resource) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.resources[res.ID] = res
	return nil
}

func (m *mockResourceRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.resources[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.resources, id)
	return nil
}

func (m *mockResourceRepo) RecordDownload(_ context.Context, d *models.Download) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.downloads = append(m.downloads, *d)
	return nil
}

type memoryBlobs struct {
	objects map[string][]byte
}

func (b *memoryBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memoryBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBlobs) Delete(_ context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type resourceFixture struct {
	svc   *ResourceService
	repo  *mockResourceRepo
	blobs *memoryBlobs
	users *mockUserRepo
	cache *stubCacheRepo
}

func newResourceFixture() *resourceFixture {
	repo := &mockResourceRepo{resources: make(map[string]*models.Resource)}
	blobs := &memoryBlobs{objects: make(map[string][]byte)}
	users := newMockUserRepo()
	cacheRepo := &stubCacheRepo{}
	cache := NewCacheService(cacheRepo, nil, 0, zap.NewNop(), true)
	svc := NewResourceService(repo, blobs, users, cache, ResourceServiceConfig{MaxUploadBytes: 1024}, zap.NewNop())
	return &resourceFixture{svc: svc, repo: repo, blobs: blobs, users: users, cache: cacheRepo}
}

func uploadInput(name, mimeType string, size int64) models.UploadResourceInput {
	return models.UploadResourceInput{FileName: name, MimeType: mimeType, Size: size, UploadedBy: "admin-1"}
}

func TestUploadStoresBlobAndRow(t *testing.T) {
	f := newResourceFixture()
	body := "hello campus"

	res, err := f.svc.Upload(context.Background(), uploadInput("notes/Week 1.PDF", "application/pdf", int64(len(body))), strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "Week 1", res.Title)
	assert.Equal(t, "Week 1.PDF", res.FileName)
	assert.Equal(t, "application/pdf", res.MimeType)
	assert.True(t, strings.HasSuffix(res.StorageKey, res.ID+".pdf"))
	assert.Equal(t, []byte(body), f.blobs.objects[res.StorageKey])
	assert.Contains(t, f.repo.resources, res.ID)
	assert.Equal(t, []string{"analytics:*"}, f.cache.deleted)
	require.Len(t, f.users.auditLogs, 1)
	assert.Equal(t, models.AuditActionResourceUpload, f.users.auditLogs[0].Action)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newResourceFixture()

	_, err := f.svc.Upload(context.Background(), uploadInput("big.pdf", "application/pdf", 2048), strings.NewReader(""))
	requireAppError(t, err, appErrors.ErrPayloadTooLarge.Code, http.StatusRequestEntityTooLarge)
	assert.Empty(t, f.blobs.objects)
}

func TestUploadTypeChecks(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		mimeType string
		ok       bool
	}{
		{"allowed docx", "a.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{"mime with params", "a.txt", "text/plain; charset=utf-8", true},
		{"markdown as plain text", "readme.md", "text/plain", true},
		{"extension not allowed", "run.exe", "application/octet-stream", false},
		{"mime mismatch", "photo.png", "application/pdf", false},
		{"garbage mime", "photo.png", ";;", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := checkUploadType(tc.fileName, tc.mimeType)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)
		})
	}
}

func TestUploadRemovesBlobWhenInsertFails(t *testing.T) {
	f := newResourceFixture()
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), uploadInput("a.png", "image/png", 3), strings.NewReader("png"))
	requireAppError(t, err, appErrors.ErrInternal.Code, http.StatusInternalServerError)
	assert.Empty(t, f.blobs.objects)
}

func TestOpenMissingResource(t *testing.T) {
	f := newResourceFixture()

	_, _, err := f.svc.Open(context.Background(), "nope")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)

	f.repo.resources["r1"] = &models.Resource{ID: "r1", StorageKey: "gone.pdf"}
	_, _, err = f.svc.Open(context.Background(), "r1")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func TestRecordDownloadQueuesJob(t *testing.T) {
	f := newResourceFixture()
	q := &recordingQueue{}
	f.svc.UseQueue(q)

	f.svc.RecordDownload(context.Background(), models.Download{ResourceID: "r1", BytesTransferred: 10})
	require.Len(t, q.jobs, 1)
	assert.Equal(t, JobTypeRecordDownload, q.jobs[0].Type)
	assert.Empty(t, f.repo.downloads)

	require.NoError(t, f.svc.ProcessJob(context.Background(), q.jobs[0]))
	require.Len(t, f.repo.downloads, 1)
	assert.Equal(t, int64(10), f.repo.downloads[0].BytesTransferred)
}

func TestRecordDownloadInlineWithoutQueue(t *testing.T) {
	f := newResourceFixture()

	f.svc.RecordDownload(context.Background(), models.Download{ResourceID: "r1"})
	assert.Len(t, f.repo.downloads, 1)
}

func TestProcessJobErrors(t *testing.T) {
	f := newResourceFixture()

	assert.Error(t, f.svc.ProcessJob(context.Background(), jobs.Job{Type: "other"}))
	assert.Error(t, f.svc.ProcessJob(context.Background(), jobs.Job{Type: JobTypeRecordDownload, Payload: "x"}))

	f.repo.recordErr = sql.ErrNoRows
	assert.NoError(t, f.svc.ProcessJob(context.Background(), jobs.Job{Type: JobTypeRecordDownload, Payload: models.Download{ResourceID: "gone"}}))

	f.repo.recordErr = errors.New("deadlock")
	assert.Error(t, f.svc.ProcessJob(context.Background(), jobs.Job{Type: JobTypeRecordDownload, Payload: models.Download{ResourceID: "r1"}}))
}

func TestDeleteRemovesRowAndBlob(t *testing.T) {
	f := newResourceFixture()
	f.repo.resources["r1"] = &models.Resource{ID: "r1", StorageKey: "k.pdf"}
	f.blobs.objects["k.pdf"] = []byte("x")

	require.NoError(t, f.svc.Delete(context.Background(), "r1", "admin-1", "", ""))
	assert.Empty(t, f.repo.resources)
	assert.Empty(t, f.blobs.objects)

	err := f.svc.Delete(context.Background(), "r1", "admin-1", "", "")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func TestSearchPagination(t *testing.T) {
	f := newResourceFixture()
	f.repo.resources["r1"] = &models.Resource{ID: "r1"}

	result, err := f.svc.Search(context.Background(), models.ResourceFilter{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 1)
	assert.Equal(t, &models.Pagination{Total: 1, Page: 1, Limit: 10, Pages: 1}, result.Pagination)
}
