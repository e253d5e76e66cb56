// Package drive fetches input workbooks from Google Drive.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	folderMimeType      = "application/vnd.google-apps.folder"
	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	xlsxMimeType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Service struct {
	srv *drive.Service
}

func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	config, err := google.JWTConfigFromJSON([]byte(credentialsJSON), drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse drive credentials: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

// ListFiles returns the non-trashed files of a folder ("root" when empty).
func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	if folderID == "" {
		folderID = "root"
	}

	result, err := s.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
		Fields("files(id, name, mimeType, modifiedTime, size)").
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list drive folder %s: %w", folderID, err)
	}

	files := make([]*File, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, &File{
			ID:           f.Id,
			Name:         f.Name,
			MimeType:     f.MimeType,
			ModifiedTime: f.ModifiedTime,
			Size:         f.Size,
		})
	}
	return files, nil
}

// FindFolderByPath walks a slash-separated folder path from the drive root.
func (s *Service) FindFolderByPath(ctx context.Context, folderPath string) (string, error) {
	currentID := "root"
	for _, folder := range strings.Split(folderPath, "/") {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
				currentID, escapeQuery(folder), folderMimeType)).
			Fields("files(id, name)").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}
		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", folder)
		}
		currentID = result.Files[0].Id
	}
	return currentID, nil
}

// FindFile resolves "/Folder/Sub/Name.xlsx" to the newest file with that name.
// A path ending in "/" picks the newest spreadsheet in the folder.
func (s *Service) FindFile(ctx context.Context, filePath string) (*File, error) {
	dir, name := path.Split(strings.TrimSpace(filePath))
	folderID, err := s.FindFolderByPath(ctx, dir)
	if err != nil {
		return nil, err
	}
	files, err := s.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if f := matchFile(files, name); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("file not found in drive: %s", filePath)
}

// matchFile expects files ordered newest first.
func matchFile(files []*File, name string) *File {
	for _, f := range files {
		if name == "" {
			if IsSpreadsheet(f) {
				return f
			}
			continue
		}
		if f.Name == name || strings.TrimSuffix(f.Name, path.Ext(f.Name)) == name {
			return f
		}
	}
	return nil
}

// IsSpreadsheet reports whether the file can be read as an input table.
func IsSpreadsheet(f *File) bool {
	if f.MimeType == spreadsheetMimeType {
		return true
	}
	switch strings.ToLower(path.Ext(f.Name)) {
	case ".xlsx", ".xlsm", ".csv":
		return true
	}
	return false
}

// GetFile returns a file's metadata.
func (s *Service) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := s.srv.Files.Get(fileID).Fields("id, name, mimeType, modifiedTime, size").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get drive file %s: %w", fileID, err)
	}
	return &File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, ModifiedTime: f.ModifiedTime, Size: f.Size}, nil
}

// DownloadFile streams a file's content. Native Google Sheets are exported
// as xlsx.
func (s *Service) DownloadFile(ctx context.Context, file *File, w io.Writer) error {
	var (
		body io.ReadCloser
		err  error
	)
	if file.MimeType == spreadsheetMimeType {
		resp, derr := s.srv.Files.Export(file.ID, xlsxMimeType).Context(ctx).Download()
		if resp != nil {
			body = resp.Body
		}
		err = derr
	} else {
		resp, derr := s.srv.Files.Get(file.ID).Context(ctx).Download()
		if resp != nil {
			body = resp.Body
		}
		err = derr
	}
	if err != nil {
		return fmt.Errorf("unable to download drive file %s: %w", file.ID, err)
	}
	defer body.Close()

	_, err = io.Copy(w, body)
	return err
}

// DownloadTo saves a file under destPath.
func (s *Service) DownloadTo(ctx context.Context, file *File, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if err := s.DownloadFile(ctx, file, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LocalName is the file name a download should be saved under.
func LocalName(f *File) string {
	name := path.Base(f.Name)
	if f.MimeType == spreadsheetMimeType && !strings.EqualFold(path.Ext(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
