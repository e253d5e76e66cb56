package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/andresuchdata/dispatch-hub/internal/drive"
)

// DriveBrowser lists candidate input files on Google Drive.
type DriveBrowser interface {
	ListFiles(ctx context.Context, folderID string) ([]*drive.File, error)
	FindFolderByPath(ctx context.Context, folderPath string) (string, error)
}

type DriveHandler struct {
	drive DriveBrowser
}

func NewDriveHandler(d DriveBrowser) *DriveHandler {
	return &DriveHandler{drive: d}
}

type driveFile struct {
	*drive.File
	Ref string `json:"ref"`
}

// ListFiles handles GET /drive/files?folderId=...|path=... and returns the
// spreadsheets of a folder with the reference to pass to /runs.
func (h *DriveHandler) ListFiles(c *gin.Context) {
	folderID := c.Query("folderId")
	if folderPath := c.Query("path"); folderPath != "" {
		id, err := h.drive.FindFolderByPath(c.Request.Context(), folderPath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		folderID = id
	}

	files, err := h.drive.ListFiles(c.Request.Context(), folderID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	out := lo.FilterMap(files, func(f *drive.File, _ int) (driveFile, bool) {
		return driveFile{File: f, Ref: "drive://" + f.ID}, drive.IsSpreadsheet(f)
	})
	c.JSON(http.StatusOK, gin.H{"files": out})
}
