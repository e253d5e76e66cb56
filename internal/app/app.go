// Package app wires configuration into the report service and its backends.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresuchdata/dispatch-hub/internal/api"
	"github.com/andresuchdata/dispatch-hub/internal/cache"
	"github.com/andresuchdata/dispatch-hub/internal/config"
	"github.com/andresuchdata/dispatch-hub/internal/drive"
	"github.com/andresuchdata/dispatch-hub/internal/mail"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/report"
	"github.com/andresuchdata/dispatch-hub/internal/service"
	"github.com/andresuchdata/dispatch-hub/internal/source"
	"github.com/andresuchdata/dispatch-hub/internal/storage"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

type App struct {
	Config  *config.Config
	Reports *service.ReportService
	Loader  *service.InputLoader
	Drive   *drive.Service // nil when drive is not configured
}

// New builds the application. Optional backends (mail, drive, object storage,
// redis) are left out when they are not configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	renderer := report.New(RendererOptions(cfg.Report))

	var mailer service.Mailer
	if err := cfg.RequireMail(); err != nil {
		logger.Log.Warn().Err(err).Msg("mail disabled, only previews are possible")
	} else {
		sender, err := mail.NewSMTPSender(MailConfig(cfg.Mail))
		if err != nil {
			return nil, err
		}
		mailer = sender
	}

	var (
		store     storage.ObjectStorage
		opts      []service.Option
		driveSvc  *drive.Service
		driveRefs source.DriveFetcher
	)
	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = client
		opts = append(opts, service.WithArchive(client))
	}

	if cfg.Drive.CredentialsJSON != "" {
		creds, err := driveCredentials(cfg.Drive.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		if driveSvc, err = drive.NewService(ctx, creds); err != nil {
			return nil, err
		}
		driveRefs = driveSvc
	}

	summaryCache, err := cache.NewSummaryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("summary cache unavailable, continuing without it")
		summaryCache = cache.NewNoopSummaryCache()
	}
	opts = append(opts, service.WithSummaryCache(summaryCache))

	reports, err := service.NewReportService(mailer, renderer, Settings(cfg), opts...)
	if err != nil {
		return nil, err
	}

	loader := service.NewInputLoader(source.NewResolver(driveRefs, store), service.SheetNames{
		Mapping:    cfg.Report.MappingSheet,
		Recipients: cfg.Report.RecipientSheet,
		Snapshot:   cfg.Report.SnapshotSheet,
	})

	return &App{Config: cfg, Reports: reports, Loader: loader, Drive: driveSvc}, nil
}

// APIServices exposes the app to the HTTP router.
func (a *App) APIServices() *api.Services {
	s := &api.Services{
		Reports:   a.Reports,
		Loader:    a.Loader,
		WorkDir:   a.Config.App.WorkDir,
		OutputDir: a.Config.App.OutputDir,
	}
	if a.Drive != nil {
		s.Drive = a.Drive
	}
	return s
}

// Settings maps configuration onto the run parameters.
func Settings(cfg *config.Config) service.Settings {
	return service.Settings{
		Pipeline: pipeline.Config{
			BusinessUnit:  cfg.Report.BusinessUnit,
			PODExclusions: cfg.Report.PODExclusions,
			CriticalDays:  cfg.Report.CriticalDays,
		},
		IncludeMaster: cfg.Report.IncludeMaster,
		AdminMailbox:  cfg.Mail.Admin,
		WorkDir:       cfg.App.WorkDir,
		ArchivePrefix: cfg.Storage.ArchivePrefix,
	}
}

func RendererOptions(rc config.ReportConfig) report.Options {
	return report.Options{
		CriticalDays:    rc.CriticalDays,
		DateLayout:      rc.DateLayout,
		Locale:          rc.Locale,
		Signature:       rc.Signature,
		MailBodyColumns: rc.MailBodyColumns,
	}
}

func MailConfig(mc config.MailConfig) mail.Config {
	return mail.Config{
		Host:     mc.Host,
		Port:     mc.Port,
		Username: mc.Username,
		Password: mc.Password,
		From:     mc.From,
		Timeout:  time.Duration(mc.TimeoutSeconds) * time.Second,
	}
}

// driveCredentials accepts either the JSON document or a path to it.
func driveCredentials(raw string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return raw, nil
	}
	b, err := os.ReadFile(raw)
	if err != nil {
		return "", fmt.Errorf("failed to read drive credentials %s: %w", raw, err)
	}
	return string(b), nil
}
