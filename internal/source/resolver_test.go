package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/dispatch-hub/internal/drive"
	"github.com/andresuchdata/dispatch-hub/internal/storage"
)

type fakeDrive struct {
	files map[string]*drive.File
}

func (f *fakeDrive) GetFile(_ context.Context, id string) (*drive.File, error) {
	if file, ok := f.files[id]; ok {
		return file, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeDrive) FindFile(_ context.Context, p string) (*drive.File, error) {
	return f.GetFile(context.Background(), p)
}

func (f *fakeDrive) DownloadTo(_ context.Context, file *drive.File, dest string) error {
	return os.WriteFile(dest, []byte(file.ID), 0o644)
}

type fakeStorage struct {
	objects    []storage.ObjectInfo
	downloaded []string
}

func (s *fakeStorage) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for _, o := range s.objects {
		if strings.HasPrefix(o.Key, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStorage) DownloadObject(_ context.Context, key, dest string) error {
	s.downloaded = append(s.downloaded, key)
	return os.WriteFile(dest, []byte(key), 0o644)
}

func (s *fakeStorage) UploadFile(context.Context, string, string) error { return nil }

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r := NewResolver(nil, nil)
	got, err := r.Fetch(context.Background(), path, dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = r.Fetch(context.Background(), filepath.Join(dir, "missing.xlsx"), dir)
	assert.Error(t, err)

	_, err = r.Fetch(context.Background(), dir, dir)
	assert.Error(t, err)
}

func TestFetchDrive(t *testing.T) {
	dir := t.TempDir()
	d := &fakeDrive{files: map[string]*drive.File{
		"abc":                   {ID: "abc", Name: "Mapping", MimeType: "application/vnd.google-apps.spreadsheet"},
		"/Reports/Dispatch.xlsx": {ID: "def", Name: "Dispatch.xlsx"},
	}}
	r := NewResolver(d, nil)

	got, err := r.Fetch(context.Background(), "drive://abc", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "-Mapping.xlsx"), got)
	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))

	got, err = r.Fetch(context.Background(), "drive:/Reports/Dispatch.xlsx", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "-Dispatch.xlsx"), got)

	_, err = NewResolver(nil, nil).Fetch(context.Background(), "drive://abc", dir)
	assert.ErrorIs(t, err, ErrDriveDisabled)
}

func TestFetchObject(t *testing.T) {
	dir := t.TempDir()
	s := &fakeStorage{}

	got, err := NewResolver(nil, s).Fetch(context.Background(), "s3://snapshots/2024-01-09.xlsx", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/2024-01-09.xlsx"}, s.downloaded)
	assert.Equal(t, dir, filepath.Dir(got))

	_, err = NewResolver(nil, nil).Fetch(context.Background(), "s3://x.xlsx", dir)
	assert.ErrorIs(t, err, ErrStorageDisabled)

	_, err = NewResolver(nil, s).Fetch(context.Background(), "  ", dir)
	assert.Error(t, err)
}

func TestFetchLatestObject(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 1, 9, 18, 0, 0, 0, time.UTC)
	s := &fakeStorage{objects: []storage.ObjectInfo{
		{Key: "reports/old.xlsx", LastModified: day.Add(-24 * time.Hour)},
		{Key: "reports/new.xlsx", LastModified: day},
		{Key: "reports/newer.log", LastModified: day.Add(time.Hour)},
	}}

	got, err := NewResolver(nil, s).Fetch(context.Background(), "s3://reports/", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/new.xlsx"}, s.downloaded)
	assert.True(t, strings.HasSuffix(got, "-new.xlsx"), got)

	_, err = NewResolver(nil, s).Fetch(context.Background(), "s3://empty/", dir)
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	for ref, want := range map[string]bool{
		"drive://abc":             true,
		"drive:/Reports/Map.xlsx": true,
		" s3://reports/":          true,
		"/etc/passwd":             false,
		"raw.xlsx":                false,
		"file:///tmp/x.xlsx":      false,
		"":                        false,
	} {
		assert.Equal(t, want, IsRemote(ref), ref)
	}
}
