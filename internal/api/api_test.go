package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/drive"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/service"
)

type fakeLoader struct {
	got  service.Sources
	err  error
	seen map[string]string
}

func (f *fakeLoader) Load(_ context.Context, src service.Sources, _ string) (pipeline.Inputs, error) {
	f.got = src
	f.seen = map[string]string{}
	for name, p := range map[string]string{"raw": src.Raw, "mapping": src.Mapping} {
		if b, err := os.ReadFile(p); err == nil {
			f.seen[name] = string(b)
		}
	}
	return pipeline.Inputs{}, f.err
}

type fakeRunner struct {
	opts    service.Options
	err     error
	summary *domain.Summary
}

func (f *fakeRunner) Run(_ context.Context, _ pipeline.Inputs, opts service.Options) (*service.RunReport, error) {
	f.opts = opts
	run := &service.RunReport{RunID: "run-1", Status: pipeline.StatusCompleted, DryRun: opts.DryRun}
	if f.err != nil {
		run.Status = pipeline.StatusFailed
		return run, f.err
	}
	run.Outcomes = []service.Outcome{{Target: "L1", Status: domain.OutcomeSent}}
	return run, nil
}

func (f *fakeRunner) Summarize(_ context.Context, _ pipeline.Inputs, _ time.Time) (*domain.Summary, error) {
	return f.summary, f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, runner *fakeRunner, loader *fakeLoader) *gin.Engine {
	t.Helper()
	return NewRouter(&Services{
		Reports:   runner,
		Loader:    loader,
		WorkDir:   t.TempDir(),
		OutputDir: t.TempDir(),
	}, nil)
}

func multipartBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(field + "-content"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeRunner{}, &fakeLoader{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStartRun(t *testing.T) {
	runner, loader := &fakeRunner{}, &fakeLoader{}
	router := newTestRouter(t, runner, loader)

	body, ctype := multipartBody(t,
		map[string]string{"raw": "extract.xlsx", "mapping": "mapping.xlsx"},
		map[string]string{"dry_run": "true", "as_of": "2024-01-10", "previous": "s3://reports/prev.xlsx"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run service.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.RunID)
	assert.True(t, run.DryRun)
	assert.Contains(t, rec.Body.String(), `"status":"sent"`)

	assert.True(t, runner.opts.DryRun)
	assert.NotEmpty(t, runner.opts.OutputDir)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), runner.opts.AsOf)
	assert.True(t, strings.HasSuffix(loader.got.Raw, "raw.xlsx"))
	assert.Equal(t, "s3://reports/prev.xlsx", loader.got.Previous)
	assert.Equal(t, "raw-content", loader.seen["raw"])
	assert.Equal(t, "mapping-content", loader.seen["mapping"])
}

func TestStartRunSchemaError(t *testing.T) {
	runner := &fakeRunner{err: &domain.SchemaError{Table: "raw", Column: "Billing_Date"}}
	router := newTestRouter(t, runner, &fakeLoader{})

	body, ctype := multipartBody(t, map[string]string{"raw": "a.xlsx", "mapping": "b.xlsx"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"column":"Billing_Date"`)
}

func TestStartRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		fields map[string]string
		want   string
	}{
		{"missing mapping", map[string]string{"raw": "a.xlsx"}, nil, "mapping file is required"},
		{"bad extension", map[string]string{"raw": "a.pdf", "mapping": "b.xlsx"}, nil, "unsupported file type"},
		{"bad as_of", map[string]string{"raw": "a.xlsx", "mapping": "b.xlsx"}, map[string]string{"as_of": "10/01/2024"}, "invalid as_of"},
		{"bad dry_run", map[string]string{"raw": "a.xlsx", "mapping": "b.xlsx"}, map[string]string{"dry_run": "maybe"}, "invalid dry_run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeRunner{}, &fakeLoader{})
			body, ctype := multipartBody(t, tt.files, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestStartRunWithoutMailer(t *testing.T) {
	router := newTestRouter(t, &fakeRunner{err: service.ErrNoMailer}, &fakeLoader{})

	form := url.Values{"raw": {"drive://abc"}, "mapping": {"drive:/Reports/Mapping.xlsx"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSummary(t *testing.T) {
	runner := &fakeRunner{summary: &domain.Summary{AsOf: "2024-01-10", PendingInvoices: 4}}
	router := newTestRouter(t, runner, &fakeLoader{})

	body, ctype := multipartBody(t, map[string]string{"raw": "a.csv", "mapping": "b.xlsx"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/summary", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"pending_invoices":4`)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example.com, https://b.example.com", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}

type fakeDrive struct{}

func (fakeDrive) ListFiles(_ context.Context, folderID string) ([]*drive.File, error) {
	if folderID != "folder-1" {
		return nil, errors.New("unexpected folder " + folderID)
	}
	return []*drive.File{
		{ID: "f1", Name: "Dispatch.xlsx"},
		{ID: "f2", Name: "readme.txt"},
	}, nil
}

func (fakeDrive) FindFolderByPath(_ context.Context, p string) (string, error) {
	if p == "/Reports" {
		return "folder-1", nil
	}
	return "", errors.New("folder not found")
}

func TestDriveFiles(t *testing.T) {
	router := NewRouter(&Services{Drive: fakeDrive{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drive/files?path=/Reports", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"ref":"drive://f1"`)
	assert.NotContains(t, rec.Body.String(), "readme.txt")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drive/files?path=/Nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInputRefsMustBeRemote(t *testing.T) {
	secret := t.TempDir() + "/private_extract.csv"
	require.NoError(t, os.WriteFile(secret, []byte("Bill_Amount\n99999\n"), 0o600))

	for _, path := range []string{"/api/v1/summary", "/api/v1/runs"} {
		t.Run(path, func(t *testing.T) {
			runner := &fakeRunner{summary: &domain.Summary{}}
			loader := &fakeLoader{}
			router := newTestRouter(t, runner, loader)

			form := url.Values{"raw": {secret}, "mapping": {"s3://mapping.xlsx"}}
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "drive://")
			assert.Nil(t, loader.seen, "loader must not be called")
		})
	}

	loader := &fakeLoader{}
	router := newTestRouter(t, &fakeRunner{summary: &domain.Summary{}}, loader)
	body, ctype := multipartBody(t, map[string]string{"raw": "a.csv"}, map[string]string{"mapping": "../etc/mapping.xlsx"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/summary", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, loader.seen)
}

func TestWildcardOriginsDropCredentials(t *testing.T) {
	router := NewRouter(nil, []string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	router = NewRouter(nil, []string{"https://app.example.com"})
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
