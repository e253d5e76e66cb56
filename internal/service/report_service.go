package service

//go:generate mockgen -source=report_service.go -destination=mocks/mocks.go -package=mocks Mailer,Archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/andresuchdata/dispatch-hub/internal/cache"
	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/mail"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/report"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

const warningSamples = 5

// ErrNoMailer is returned when a live run is requested without a transport.
var ErrNoMailer = errors.New("mail transport is not configured")

// Mailer delivers one rendered report.
type Mailer interface {
	Send(ctx context.Context, m mail.Message) error
}

// Archiver keeps a copy of the master workbook.
type Archiver interface {
	UploadFile(ctx context.Context, key, srcPath string) error
}

// Settings are the run parameters fixed at construction.
type Settings struct {
	Pipeline      pipeline.Config
	IncludeMaster bool
	AdminMailbox  string
	WorkDir       string // parent of the per-run temp dir
	ArchivePrefix string
}

// Options vary per run.
type Options struct {
	DryRun    bool
	OutputDir string    // where dry-run files are kept
	AsOf      time.Time // zero means today
	OnOutcome func(Outcome)
}

// Outcome is what happened to one addressee.
type Outcome struct {
	Target    string               `json:"target"`
	Dimension string               `json:"dimension"`
	Recipient string               `json:"recipient,omitempty"`
	Status    domain.OutcomeStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
	File      string               `json:"file,omitempty"`
}

// RunReport is returned by Run.
type RunReport struct {
	RunID      string                `json:"run_id"`
	Status     pipeline.RunStatus    `json:"status"`
	DryRun     bool                  `json:"dry_run"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Outcomes   []Outcome             `json:"outcomes"`
	Master     *Outcome              `json:"master,omitempty"`
	Misses     []string              `json:"lookup_misses"`
	Warnings   []domain.ParseWarning `json:"warnings"`
	Summary    *domain.Summary       `json:"summary,omitempty"`
	Archived   string                `json:"archived,omitempty"`
}

// Failed lists the targets whose send failed.
func (r *RunReport) Failed() []string {
	return lo.FilterMap(r.Outcomes, func(o Outcome, _ int) (string, bool) {
		return o.Target, o.Status == domain.OutcomeFailed
	})
}

type ReportService struct {
	mailer   Mailer
	archive  Archiver
	cache    cache.SummaryCache
	renderer *report.Renderer
	settings Settings
}

type Option func(*ReportService)

func WithArchive(a Archiver) Option {
	return func(s *ReportService) { s.archive = a }
}

func WithSummaryCache(c cache.SummaryCache) Option {
	return func(s *ReportService) { s.cache = c }
}

// NewReportService builds the service. mailer may be nil for preview-only use.
func NewReportService(mailer Mailer, renderer *report.Renderer, settings Settings, opts ...Option) (*ReportService, error) {
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if settings.WorkDir == "" {
		settings.WorkDir = os.TempDir()
	}
	s := &ReportService{
		mailer:   mailer,
		renderer: renderer,
		settings: settings,
		cache:    cache.NewNoopSummaryCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run computes the cohorts once, then renders and sends one report per
// assignment in order, followed by the master report. A failed send is
// recorded and the loop moves on. A schema error aborts before anything is
// rendered; the returned report then has status failed.
func (s *ReportService) Run(ctx context.Context, in pipeline.Inputs, opts Options) (*RunReport, error) {
	run := &RunReport{
		RunID:     uuid.NewString(),
		Status:    pipeline.StatusProcessing,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
		Outcomes:  []Outcome{},
	}
	log := logger.WithRun(run.RunID)

	if !opts.DryRun && s.mailer == nil {
		run.Status = pipeline.StatusFailed
		return run, ErrNoMailer
	}

	cfg := s.settings.Pipeline
	cfg.AsOf = opts.AsOf
	res, err := pipeline.Compute(in, cfg)
	if err != nil {
		run.Status = pipeline.StatusFailed
		run.FinishedAt = time.Now()
		log.Error().Err(err).Msg("report run aborted")
		return run, err
	}
	run.Warnings = res.Warnings
	run.Misses = lo.Map(res.Misses, func(m domain.LookupMiss, _ int) string { return m.Target.String() })
	if len(res.Warnings) > 0 {
		samples := lo.Map(lo.Subset(res.Warnings, 0, warningSamples), func(w domain.ParseWarning, _ int) string { return w.String() })
		log.Warn().Int("count", len(res.Warnings)).Strs("samples", samples).Msg("values treated as missing")
	}

	dir, cleanup, err := s.runDir(run.RunID, opts)
	if err != nil {
		run.Status = pipeline.StatusFailed
		return run, err
	}
	defer cleanup()

	log.Info().
		Int("targets", len(res.Assignments)).
		Int("misses", len(res.Misses)).
		Int("pending", res.Pending.Len()).
		Int("delivered", res.Delivered.Len()).
		Bool("dry_run", opts.DryRun).
		Msg("report run started")

	names := fileNames{}
	for _, a := range res.Assignments {
		file := filepath.Join(dir, names.next(reportFileName(a.Target.Name, res.AsOf)))
		o := s.deliver(ctx, log, file, a, opts.DryRun)
		run.Outcomes = append(run.Outcomes, o)
		if opts.OnOutcome != nil {
			opts.OnOutcome(o)
		}
	}
	for _, m := range res.Misses {
		o := Outcome{
			Target:    m.Target.Name,
			Dimension: m.Target.Dimension.String(),
			Status:    domain.OutcomeSkipped,
			Error:     "no recipient configured",
		}
		log.Debug().Str("target", m.Target.String()).Msg("lookup miss, target skipped")
		run.Outcomes = append(run.Outcomes, o)
		if opts.OnOutcome != nil {
			opts.OnOutcome(o)
		}
	}

	if s.settings.IncludeMaster {
		notes := report.MasterNotes{
			Failed:  run.Failed(),
			Skipped: lo.Map(res.Misses, func(m domain.LookupMiss, _ int) string { return m.Target.Name }),
		}
		file := filepath.Join(dir, names.next("Master_"+reportFileName("Dispatch", res.AsOf)))
		master := s.deliverMaster(ctx, log, file, res, notes, opts.DryRun, run)
		run.Master = &master
		if opts.OnOutcome != nil {
			opts.OnOutcome(master)
		}
	}

	summary := pipeline.Summarize(res, cfg.CriticalDays)
	summary.Display = s.renderer.Display(summary)
	run.Summary = &summary

	run.Status = pipeline.StatusCompleted
	if len(run.Failed()) > 0 || (run.Master != nil && run.Master.Status == domain.OutcomeFailed) {
		run.Status = pipeline.StatusPartial
	}
	run.FinishedAt = time.Now()
	log.Info().
		Str("status", string(run.Status)).
		Int("failed", len(run.Failed())).
		Dur("took", run.FinishedAt.Sub(run.StartedAt)).
		Msg("report run finished")
	return run, nil
}

// runDir returns where report files are written. Dry runs keep them in the
// output dir; live runs use a temp dir removed when the run ends.
func (s *ReportService) runDir(runID string, opts Options) (string, func(), error) {
	if opts.DryRun {
		dir := opts.OutputDir
		if dir == "" {
			dir = filepath.Join(s.settings.WorkDir, "preview-"+runID[:8])
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
		}
		return dir, func() {}, nil
	}

	dir, err := os.MkdirTemp(s.settings.WorkDir, "dispatch-"+runID[:8]+"-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (s *ReportService) deliver(ctx context.Context, log zerolog.Logger, file string, a pipeline.Assignment, dryRun bool) Outcome {
	o := Outcome{
		Target:    a.Target.Name,
		Dimension: a.Target.Dimension.String(),
		Recipient: a.Recipient.Email,
	}
	fail := func(err error) Outcome {
		sf := &domain.SendFailure{Target: a.Target.Name, Err: err}
		o.Status = domain.OutcomeFailed
		o.Error = sf.Error()
		log.Error().Err(sf).Str("target", a.Target.String()).Msg("report not delivered")
		return o
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	body, err := s.renderer.TargetHTML(a)
	if err != nil {
		return fail(err)
	}
	if err := s.renderer.WriteTargetWorkbook(file, a); err != nil {
		return fail(err)
	}

	if dryRun {
		o.Status = domain.OutcomeRendered
		o.File = file
		log.Info().Str("target", a.Target.String()).Str("file", file).Msg("report rendered")
		return o
	}
	defer removeFile(log, file)

	err = s.mailer.Send(ctx, mail.Message{
		To:         a.Recipient.Email,
		Cc:         a.Recipient.CC,
		Subject:    "Daily Report - " + a.Target.Name,
		HTML:       body,
		Attachment: file,
	})
	if err != nil {
		return fail(err)
	}
	o.Status = domain.OutcomeSent
	log.Info().Str("target", a.Target.String()).Str("to", a.Recipient.Email).Msg("Sent: " + a.Target.Name)
	return o
}

func (s *ReportService) deliverMaster(ctx context.Context, log zerolog.Logger, file string, res *pipeline.Result, notes report.MasterNotes, dryRun bool, run *RunReport) Outcome {
	o := Outcome{Target: "master", Dimension: "admin", Recipient: s.settings.AdminMailbox}
	fail := func(err error) Outcome {
		sf := &domain.SendFailure{Target: "master", Err: err}
		o.Status = domain.OutcomeFailed
		o.Error = sf.Error()
		log.Error().Err(sf).Msg("master report not delivered")
		return o
	}

	body, err := s.renderer.MasterHTML(res, notes)
	if err != nil {
		return fail(err)
	}
	if err := s.renderer.WriteMasterWorkbook(file, res); err != nil {
		return fail(err)
	}

	if dryRun {
		o.Status = domain.OutcomeRendered
		o.File = file
		return o
	}
	defer removeFile(log, file)

	if s.archive != nil {
		key := path.Join(s.settings.ArchivePrefix, res.AsOf.Format("2006-01-02"), run.RunID[:8]+"-"+filepath.Base(file))
		if err := s.archive.UploadFile(ctx, key, file); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("master report archive failed")
		} else {
			run.Archived = key
		}
	}

	if s.settings.AdminMailbox == "" {
		return fail(errors.New("admin mailbox is not configured"))
	}
	err = s.mailer.Send(ctx, mail.Message{
		To:         s.settings.AdminMailbox,
		Subject:    "Daily Master Report - " + res.AsOf.Format(s.renderer.Options().DateLayout),
		HTML:       body,
		Attachment: file,
	})
	if err != nil {
		return fail(err)
	}
	o.Status = domain.OutcomeSent
	log.Info().Str("to", s.settings.AdminMailbox).Msg("master report sent")
	return o
}

// ResetSummaries drops every cached summary.
func (s *ReportService) ResetSummaries(ctx context.Context) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to reset summary cache: %w", err)
	}
	logger.Log.Info().Msg("summary cache cleared")
	return nil
}

// Summarize computes the headline metrics without rendering or sending.
func (s *ReportService) Summarize(ctx context.Context, in pipeline.Inputs, asOf time.Time) (*domain.Summary, error) {
	if asOf.IsZero() {
		asOf = pipeline.Today()
	}
	cfg := s.settings.Pipeline
	cfg.AsOf = asOf
	key := fingerprint(in, cfg)

	if cached, ok, err := s.cache.GetSummary(ctx, key); err != nil {
		logger.Log.Warn().Err(err).Msg("summary cache read failed")
	} else if ok {
		return cached, nil
	}

	res, err := pipeline.Compute(in, cfg)
	if err != nil {
		return nil, err
	}
	summary := pipeline.Summarize(res, cfg.CriticalDays)
	summary.Display = s.renderer.Display(summary)

	if err := s.cache.SetSummary(ctx, key, &summary); err != nil {
		logger.Log.Warn().Err(err).Msg("summary cache write failed")
	}
	return &summary, nil
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func reportFileName(target string, asOf time.Time) string {
	name := strings.Trim(unsafeName.ReplaceAllString(target, "_"), "_")
	if name == "" {
		name = "target"
	}
	return fmt.Sprintf("%s_Report_%s.xlsx", name, asOf.Format("2006-01-02"))
}

// fileNames hands out report file names unique within one run.
type fileNames map[string]int

func (f fileNames) next(name string) string {
	f[name]++
	if n := f[name]; n > 1 {
		ext := filepath.Ext(name)
		return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
	}
	return name
}

func removeFile(log zerolog.Logger, file string) {
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", file).Msg("failed to remove report file")
	}
}
