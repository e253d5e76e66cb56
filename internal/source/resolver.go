// Package source resolves input references to local files. A reference is a
// local path, drive://<fileID>, drive:/<folder path>/<name>, or s3://<key>.
// Folder refs ending in "/" pick the newest spreadsheet inside.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/andresuchdata/dispatch-hub/internal/drive"
	"github.com/andresuchdata/dispatch-hub/internal/storage"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

const (
	driveIDScheme   = "drive://"
	drivePathScheme = "drive:/"
	s3Scheme        = "s3://"
)

var (
	ErrDriveDisabled   = errors.New("google drive is not configured")
	ErrStorageDisabled = errors.New("object storage is not configured")
)

// DriveFetcher is the subset of the Drive client the resolver uses.
type DriveFetcher interface {
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
	FindFile(ctx context.Context, filePath string) (*drive.File, error)
	DownloadTo(ctx context.Context, file *drive.File, destPath string) error
}

// IsRemote reports whether ref names a Drive file or a storage object.
func IsRemote(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.HasPrefix(ref, driveIDScheme) ||
		strings.HasPrefix(ref, drivePathScheme) ||
		strings.HasPrefix(ref, s3Scheme)
}

// Resolver downloads remote references into a caller-owned directory.
type Resolver struct {
	drive   DriveFetcher
	storage storage.ObjectStorage
}

// NewResolver accepts nil backends; references to them then fail.
func NewResolver(d DriveFetcher, s storage.ObjectStorage) *Resolver {
	return &Resolver{drive: d, storage: s}
}

// Fetch returns a local path for ref, downloading into dir when remote.
func (r *Resolver) Fetch(ctx context.Context, ref, dir string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", errors.New("empty input reference")
	case strings.HasPrefix(ref, driveIDScheme):
		return r.fetchDrive(ctx, ref, dir, func() (*drive.File, error) {
			return r.drive.GetFile(ctx, strings.TrimPrefix(ref, driveIDScheme))
		})
	case strings.HasPrefix(ref, drivePathScheme):
		return r.fetchDrive(ctx, ref, dir, func() (*drive.File, error) {
			return r.drive.FindFile(ctx, strings.TrimPrefix(ref, "drive:"))
		})
	case strings.HasPrefix(ref, s3Scheme):
		return r.fetchObject(ctx, strings.TrimPrefix(ref, s3Scheme), dir)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", fmt.Errorf("cannot stat input file %s: %w", ref, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input path %s is a directory, expected file", ref)
	}
	return ref, nil
}

func (r *Resolver) fetchDrive(ctx context.Context, ref, dir string, lookup func() (*drive.File, error)) (string, error) {
	if r.drive == nil {
		return "", fmt.Errorf("%s: %w", ref, ErrDriveDisabled)
	}
	file, err := lookup()
	if err != nil {
		return "", err
	}
	dest := localPath(dir, drive.LocalName(file))
	if err := r.drive.DownloadTo(ctx, file, dest); err != nil {
		return "", err
	}
	logger.Log.Info().Str("ref", ref).Str("name", file.Name).Str("path", dest).Msg("fetched input from drive")
	return dest, nil
}

func (r *Resolver) fetchObject(ctx context.Context, key, dir string) (string, error) {
	if r.storage == nil {
		return "", fmt.Errorf("s3://%s: %w", key, ErrStorageDisabled)
	}
	if key == "" {
		return "", errors.New("empty object key")
	}
	if strings.HasSuffix(key, "/") {
		latest, err := r.latestObject(ctx, key)
		if err != nil {
			return "", err
		}
		key = latest
	}
	dest := localPath(dir, filepath.Base(key))
	if err := r.storage.DownloadObject(ctx, key, dest); err != nil {
		return "", err
	}
	logger.Log.Info().Str("key", key).Str("path", dest).Msg("fetched input from object storage")
	return dest, nil
}

// latestObject picks the most recently modified spreadsheet under prefix.
func (r *Resolver) latestObject(ctx context.Context, prefix string) (string, error) {
	objects, err := r.storage.ListObjects(ctx, prefix)
	if err != nil {
		return "", err
	}
	sheets := lo.Filter(objects, func(o storage.ObjectInfo, _ int) bool {
		switch strings.ToLower(filepath.Ext(o.Key)) {
		case ".xlsx", ".xlsm", ".csv":
			return true
		}
		return false
	})
	if len(sheets) == 0 {
		return "", fmt.Errorf("no spreadsheet under s3://%s", prefix)
	}
	latest := lo.MaxBy(sheets, func(a, b storage.ObjectInfo) bool {
		return a.LastModified.After(b.LastModified)
	})
	return latest.Key, nil
}

// localPath prefixes the name so two inputs with the same name cannot collide.
func localPath(dir, name string) string {
	return filepath.Join(dir, uuid.NewString()[:8]+"-"+name)
}
