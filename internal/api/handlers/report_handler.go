package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/service"
	"github.com/andresuchdata/dispatch-hub/internal/source"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

// ReportRunner is the report service as seen by the HTTP layer.
type ReportRunner interface {
	Run(ctx context.Context, in pipeline.Inputs, opts service.Options) (*service.RunReport, error)
	Summarize(ctx context.Context, in pipeline.Inputs, asOf time.Time) (*domain.Summary, error)
}

// InputLoader turns input references into tables.
type InputLoader interface {
	Load(ctx context.Context, src service.Sources, dir string) (pipeline.Inputs, error)
}

type ReportHandler struct {
	runner    ReportRunner
	loader    InputLoader
	workDir   string
	outputDir string
}

func NewReportHandler(runner ReportRunner, loader InputLoader, workDir, outputDir string) *ReportHandler {
	return &ReportHandler{runner: runner, loader: loader, workDir: workDir, outputDir: outputDir}
}

// StartRun handles POST /runs. The raw, mapping and previous parts are either
// uploaded files or reference strings (drive://, drive:/, s3://). The run is
// synchronous and answers with the run report.
func (h *ReportHandler) StartRun(c *gin.Context) {
	dryRun, err := parseBool(c.PostForm("dry_run"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dry_run value"})
		return
	}
	asOf, err := parseAsOf(c.PostForm("as_of"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, cleanup, ok := h.loadInputs(c)
	if !ok {
		return
	}
	defer cleanup()

	opts := service.Options{DryRun: dryRun, AsOf: asOf}
	if dryRun {
		opts.OutputDir = filepath.Join(h.outputDir, time.Now().Format("20060102-150405"))
	}
	run, err := h.runner.Run(c.Request.Context(), in, opts)
	if err != nil {
		h.runError(c, run, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Summary handles POST /summary with the same inputs as StartRun.
func (h *ReportHandler) Summary(c *gin.Context) {
	asOf, err := parseAsOf(c.PostForm("as_of"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, cleanup, ok := h.loadInputs(c)
	if !ok {
		return
	}
	defer cleanup()

	summary, err := h.runner.Summarize(c.Request.Context(), in, asOf)
	if err != nil {
		h.runError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReportHandler) runError(c *gin.Context, run *service.RunReport, err error) {
	var schemaErr *domain.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  schemaErr.Error(),
			"table":  schemaErr.Table,
			"column": schemaErr.Column,
		})
	case errors.Is(err, service.ErrNoMailer):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.Log.Error().Err(err).Msg("report run failed")
		body := gin.H{"error": "report run failed"}
		if run != nil {
			body["run_id"] = run.RunID
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

// loadInputs saves uploaded parts into a scratch dir and loads the tables.
// It writes the error response itself and reports false on failure.
func (h *ReportHandler) loadInputs(c *gin.Context) (pipeline.Inputs, func(), bool) {
	noop := func() {}
	dir, err := os.MkdirTemp(h.workDir, "upload-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload dir"})
		return pipeline.Inputs{}, noop, false
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	var src service.Sources
	for _, part := range []struct {
		field    string
		dst      *string
		required bool
	}{
		{"raw", &src.Raw, true},
		{"mapping", &src.Mapping, true},
		{"previous", &src.Previous, false},
	} {
		ref, err := h.inputRef(c, dir, part.field)
		if err != nil {
			cleanup()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return pipeline.Inputs{}, noop, false
		}
		if ref == "" && part.required {
			cleanup()
			c.JSON(http.StatusBadRequest, gin.H{"error": part.field + " file is required"})
			return pipeline.Inputs{}, noop, false
		}
		*part.dst = ref
	}

	in, err := h.loader.Load(c.Request.Context(), src, dir)
	if err != nil {
		cleanup()
		var schemaErr *domain.SchemaError
		if errors.As(err, &schemaErr) {
			h.runError(c, nil, err)
			return pipeline.Inputs{}, noop, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Inputs{}, noop, false
	}
	return in, cleanup, true
}

func (h *ReportHandler) inputRef(c *gin.Context, dir, field string) (string, error) {
	file, err := c.FormFile(field)
	switch {
	case err == nil:
		return saveUpload(c, file, dir, field)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		ref := strings.TrimSpace(c.PostForm(field))
		if ref != "" && !source.IsRemote(ref) {
			return "", fmt.Errorf("%s: reference must be an upload or a drive://, drive:/ or s3:// ref", field)
		}
		return ref, nil
	default:
		return "", fmt.Errorf("invalid %s upload: %w", field, err)
	}
}

func saveUpload(c *gin.Context, file *multipart.FileHeader, dir, field string) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".xlsx", ".xlsm", ".csv":
	default:
		return "", fmt.Errorf("%s: unsupported file type %q", field, ext)
	}
	dst := filepath.Join(dir, field+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		logger.Log.Error().Err(err).Str("filename", file.Filename).Msg("failed to save uploaded file")
		return "", fmt.Errorf("%s: failed to save upload", field)
	}
	return dst, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}
