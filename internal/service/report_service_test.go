package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/mail"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/report"
	"github.com/andresuchdata/dispatch-hub/internal/service/mocks"
	"github.com/andresuchdata/dispatch-hub/internal/sheet"
)

var asOf = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func inputs() pipeline.Inputs {
	header := []string{"Plant", "Plant_Name", "Customer_No", "Customer_Name", "Billing_Doc",
		"Billing_Date", "Dispatch_Date", "Bill_Amount", "Gross_Weight", "RSM_Name"}
	unit := "DROOLS PET FOOD PVT LTD"
	return pipeline.Inputs{
		Raw: sheet.New("raw", header, [][]string{
			{"P1", unit, "C1", "Cust", "B1", "2024-01-01", "", "1000", "5000", "North RSM"},
			{"P2", unit, "C2", "Cust", "B2", "2024-01-05", "", "250", "100", "North RSM"},
			{"P1", unit, "C1", "Cust", "B3", "2023-12-20", "2024-01-02", "300", "100", "North RSM"},
		}),
		Mapping: sheet.New("mapping", []string{"Plant", "Location", "RM"}, [][]string{
			{"P1", "L1", "Ravi"},
			{"P2", "L2", "Ravi"},
		}),
		Recipients: sheet.New("recipients", []string{"Target", "Email", "CC"}, [][]string{
			{"L1", "l1@example.com", "a@example.com;b@example.com"},
			{"Ravi", "ravi@example.com", ""},
		}),
	}
}

type ReportServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	mailer   *mocks.MockMailer
	archive  *mocks.MockArchiver
	workDir  string
	settings Settings
	service  *ReportService
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceSuite))
}

func (s *ReportServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mailer = mocks.NewMockMailer(s.ctrl)
	s.archive = mocks.NewMockArchiver(s.ctrl)
	s.workDir = s.T().TempDir()

	cfg := pipeline.DefaultConfig()
	cfg.CriticalDays = 5
	s.settings = Settings{
		Pipeline:      cfg,
		IncludeMaster: true,
		AdminMailbox:  "admin@example.com",
		WorkDir:       s.workDir,
		ArchivePrefix: "archive",
	}

	var err error
	s.service, err = NewReportService(s.mailer, report.New(report.DefaultOptions()), s.settings, WithArchive(s.archive))
	s.Require().NoError(err)
}

func (s *ReportServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ReportServiceSuite) TestNew() {
	s.Run("nil renderer returns error", func() {
		_, err := NewReportService(s.mailer, nil, s.settings)
		s.Error(err)
	})

	s.Run("empty work dir defaults to temp dir", func() {
		svc, err := NewReportService(nil, report.New(report.DefaultOptions()), Settings{})
		s.Require().NoError(err)
		s.Equal(os.TempDir(), svc.settings.WorkDir)
	})
}

func (s *ReportServiceSuite) TestRunContinuesAfterSendFailure() {
	var attachments []string
	capture := func(_ context.Context, m mail.Message) {
		_, err := os.Stat(m.Attachment)
		s.NoError(err, "attachment must exist while sending")
		attachments = append(attachments, m.Attachment)
	}

	gomock.InOrder(
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m mail.Message) error {
			capture(ctx, m)
			s.Equal("l1@example.com", m.To)
			s.Equal([]string{"a@example.com", "b@example.com"}, m.Cc)
			s.Equal("Daily Report - L1", m.Subject)
			s.Contains(m.HTML, "L1")
			return errors.New("connection reset")
		}),
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m mail.Message) error {
			capture(ctx, m)
			s.Equal("ravi@example.com", m.To)
			s.Equal("Daily Report - Ravi", m.Subject)
			return nil
		}),
		s.archive.EXPECT().UploadFile(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, key, src string) error {
			s.True(strings.HasPrefix(key, "archive/2024-01-10/"), key)
			s.FileExists(src)
			return nil
		}),
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m mail.Message) error {
			capture(ctx, m)
			s.Equal("admin@example.com", m.To)
			s.Equal("Daily Master Report - 10-01-2024", m.Subject)
			s.Contains(m.HTML, "L1")
			return nil
		}),
	)

	var seen []string
	run, err := s.service.Run(context.Background(), inputs(), Options{
		AsOf:      asOf,
		OnOutcome: func(o Outcome) { seen = append(seen, o.Target+"="+o.Status.String()) },
	})
	s.Require().NoError(err)

	s.Equal(pipeline.StatusPartial, run.Status)
	s.Equal([]string{"L1=failed", "Ravi=sent", "L2=skipped", "master=sent"}, seen)
	s.Equal([]string{"L1"}, run.Failed())
	s.Contains(run.Outcomes[0].Error, "send to L1 failed")
	s.Equal([]string{"location:L2"}, run.Misses)
	s.NotEmpty(run.Archived)
	s.Require().NotNil(run.Summary)
	s.Equal(2, run.Summary.PendingInvoices)
	s.Equal(1, run.Summary.DeliveredCount)

	s.Len(attachments, 3)
	for _, file := range attachments {
		s.NoFileExists(file)
	}
	entries, err := os.ReadDir(s.workDir)
	s.Require().NoError(err)
	s.Empty(entries, "run dir must be removed")
}

func (s *ReportServiceSuite) TestRunAllSent() {
	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	s.archive.EXPECT().UploadFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("bucket missing"))

	run, err := s.service.Run(context.Background(), inputs(), Options{AsOf: asOf})
	s.Require().NoError(err)
	s.Equal(pipeline.StatusCompleted, run.Status)
	s.Empty(run.Archived)
	s.Equal(domain.OutcomeSent, run.Master.Status)
}

func (s *ReportServiceSuite) TestRunSchemaErrorSendsNothing() {
	in := inputs()
	in.Raw = sheet.New("raw", []string{"Plant", "Plant_Name"}, [][]string{{"P1", "DROOLS PET FOOD"}})

	run, err := s.service.Run(context.Background(), in, Options{AsOf: asOf})

	var schemaErr *domain.SchemaError
	s.Require().ErrorAs(err, &schemaErr)
	s.Equal(pipeline.StatusFailed, run.Status)
	s.Empty(run.Outcomes)
}

func (s *ReportServiceSuite) TestDryRunKeepsFiles() {
	out := filepath.Join(s.T().TempDir(), "preview")
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings)
	s.Require().NoError(err)

	run, err := svc.Run(context.Background(), inputs(), Options{DryRun: true, OutputDir: out, AsOf: asOf})
	s.Require().NoError(err)

	s.Equal(pipeline.StatusCompleted, run.Status)
	s.Require().Len(run.Outcomes, 3)
	s.Equal(domain.OutcomeRendered, run.Outcomes[0].Status)
	s.FileExists(filepath.Join(out, "L1_Report_2024-01-10.xlsx"))
	s.FileExists(filepath.Join(out, "Ravi_Report_2024-01-10.xlsx"))
	s.FileExists(run.Master.File)
}

func (s *ReportServiceSuite) TestLiveRunWithoutMailer() {
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings)
	s.Require().NoError(err)

	_, err = svc.Run(context.Background(), inputs(), Options{AsOf: asOf})
	s.ErrorIs(err, ErrNoMailer)
}

func (s *ReportServiceSuite) TestRunWithoutMaster() {
	settings := s.settings
	settings.IncludeMaster = false
	svc, err := NewReportService(s.mailer, report.New(report.DefaultOptions()), settings)
	s.Require().NoError(err)

	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	run, err := svc.Run(context.Background(), inputs(), Options{AsOf: asOf})
	s.Require().NoError(err)
	s.Nil(run.Master)
}

func (s *ReportServiceSuite) TestSummarizeUsesCache() {
	c := &memoryCache{}
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings, WithSummaryCache(c))
	s.Require().NoError(err)

	first, err := svc.Summarize(context.Background(), inputs(), asOf)
	s.Require().NoError(err)
	s.Equal(2, first.PendingInvoices)
	s.Equal("₹1,250", first.Display["pending_amount"])
	s.Equal(1, c.sets)

	second, err := svc.Summarize(context.Background(), inputs(), asOf)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(1, c.sets)
	s.Equal(1, c.hits)
}

func (s *ReportServiceSuite) TestSummarizeDefaultsToRunDate() {
	c := &memoryCache{}
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings, WithSummaryCache(c))
	s.Require().NoError(err)

	first, err := svc.Summarize(context.Background(), inputs(), time.Time{})
	s.Require().NoError(err)
	s.Equal(pipeline.Today().Format("2006-01-02"), first.AsOf)

	_, err = svc.Summarize(context.Background(), inputs(), pipeline.Today())
	s.Require().NoError(err)
	s.Equal(1, c.hits)
}

func (s *ReportServiceSuite) TestResetSummaries() {
	c := &memoryCache{}
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings, WithSummaryCache(c))
	s.Require().NoError(err)

	_, err = svc.Summarize(context.Background(), inputs(), asOf)
	s.Require().NoError(err)
	s.Require().NoError(svc.ResetSummaries(context.Background()))
	s.Empty(c.entries)

	_, err = svc.Summarize(context.Background(), inputs(), asOf)
	s.Require().NoError(err)
	s.Equal(0, c.hits)
	s.Equal(2, c.sets)

	c.err = errors.New("redis down")
	s.ErrorContains(svc.ResetSummaries(context.Background()), "redis down")
}

func (s *ReportServiceSuite) TestReportFileName() {
	s.Equal("North_Zone_Report_2024-01-10.xlsx", reportFileName("North Zone", asOf))
	s.Equal("A_B_Report_2024-01-10.xlsx", reportFileName("A/B", asOf))
	s.Equal("target_Report_2024-01-10.xlsx", reportFileName("//", asOf))
	s.Equal("Zürich_Report_2024-01-10.xlsx", reportFileName("Zürich", asOf))
	s.Equal("मुंबई_Report_2024-01-10.xlsx", reportFileName("मुंबई", asOf))

	names := fileNames{}
	s.Equal("L_1_Report.xlsx", names.next("L_1_Report.xlsx"))
	s.Equal("L_1_Report_2.xlsx", names.next("L_1_Report.xlsx"))
	s.Equal("L_1_Report_3.xlsx", names.next("L_1_Report.xlsx"))
}

func (s *ReportServiceSuite) TestDryRunKeepsCollidingNamesApart() {
	in := inputs()
	in.Mapping = sheet.New("mapping", []string{"Plant", "Location", "RM"}, [][]string{
		{"P1", "L 1", "Ravi"},
		{"P2", "L/1", "Ravi"},
	})
	in.Recipients = sheet.New("recipients", []string{"Target", "Email", "CC"}, [][]string{
		{"L 1", "a@example.com", ""},
		{"L/1", "b@example.com", ""},
	})
	out := filepath.Join(s.T().TempDir(), "preview")
	svc, err := NewReportService(nil, report.New(report.DefaultOptions()), s.settings)
	s.Require().NoError(err)

	run, err := svc.Run(context.Background(), in, Options{DryRun: true, OutputDir: out, AsOf: asOf})
	s.Require().NoError(err)

	files := map[string]bool{}
	for _, o := range run.Outcomes {
		if o.Status == domain.OutcomeRendered {
			s.FileExists(o.File)
			files[filepath.Base(o.File)] = true
		}
	}
	s.Equal(map[string]bool{
		"L_1_Report_2024-01-10.xlsx":   true,
		"L_1_Report_2024-01-10_2.xlsx": true,
	}, files)
}

func (s *ReportServiceSuite) TestFingerprint() {
	cfg := s.settings.Pipeline
	cfg.AsOf = asOf
	a := fingerprint(inputs(), cfg)
	s.Equal(a, fingerprint(inputs(), cfg))

	changed := inputs()
	changed.Raw.Rows[0][7] = "1001"
	s.NotEqual(a, fingerprint(changed, cfg))

	cfg.CriticalDays = 7
	s.NotEqual(a, fingerprint(inputs(), cfg))
}

type memoryCache struct {
	entries map[string]*domain.Summary
	sets    int
	hits    int
	err     error
}

func (m *memoryCache) GetSummary(_ context.Context, key string) (*domain.Summary, bool, error) {
	v, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return v, ok, nil
}

func (m *memoryCache) SetSummary(_ context.Context, key string, v *domain.Summary) error {
	if m.entries == nil {
		m.entries = map[string]*domain.Summary{}
	}
	m.entries[key] = v
	m.sets++
	return nil
}

func (m *memoryCache) InvalidateAll(context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.entries = nil
	return nil
}
