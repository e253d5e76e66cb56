package sheet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

func TestTableLookupIgnoresCaseAndSeparators(t *testing.T) {
	tbl := New("t", []string{" Billing_Doc ", "Plant Name", "Local/Upcountry"}, [][]string{
		{"123", "Drools"},
	})

	assert.Equal(t, 0, tbl.Col("billing doc"))
	assert.Equal(t, 1, tbl.Col("PLANT_NAME"))
	assert.Equal(t, 2, tbl.Col("local upcountry"))
	assert.Equal(t, -1, tbl.Col("missing"))
	assert.Equal(t, "Drools", tbl.Get(0, "plant_name"))
	assert.Equal(t, "", tbl.Get(0, "Local/Upcountry"), "short rows are padded")
	assert.Equal(t, "", tbl.Get(5, "Billing_Doc"))
}

func TestTableStripsLeadingBOM(t *testing.T) {
	tbl := New("t", []string{"\ufeffPlant", "Billing_Doc"}, [][]string{{"P1", "9"}})

	assert.Equal(t, "Plant", tbl.Header[0])
	assert.Equal(t, "P1", tbl.Get(0, "Plant"))
}

func TestTableRequire(t *testing.T) {
	tbl := New("raw.xlsx", []string{"Plant"}, nil)

	require.NoError(t, tbl.Require("plant"))

	err := tbl.Require("Plant", "Billing_Date")
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "raw.xlsx", schemaErr.Table)
	assert.Equal(t, "Billing_Date", schemaErr.Column)
}

func TestFindHeader(t *testing.T) {
	tbl := New("t", []string{"Billing_Doc", "standard", "Yesterday Standard Remarks"}, nil)

	h, ok := tbl.FindHeader("Standard")
	require.True(t, ok)
	assert.Equal(t, "Yesterday Standard Remarks", h)

	_, ok = tbl.FindHeader("Nope")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"45301", "45301.75", "2024-01-10", "10.01.2024", "10-01-2024", "10/01/2024", "2024-01-10 08:30:00"} {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	for raw, want := range map[string]time.Time{
		"5/1/2024":   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"1/1/2024":   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-1-5":   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"5-1-2024":   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"5.1.2024":   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"5-Jan-2024": time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	} {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	for _, raw := range []string{"", "soon", "12", "31/2/2024"} {
		_, ok := ParseDate(raw)
		assert.False(t, ok, raw)
	}
}

func TestParseDecimal(t *testing.T) {
	d, ok := ParseDecimal(" 1,234.50 ")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(d))

	_, ok = ParseDecimal("n/a")
	assert.False(t, ok)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "90001", NormalizeKey(" 90001.0 "))
	assert.Equal(t, "90001.5", NormalizeKey("90001.5"))
	assert.Equal(t, "P1.0", NormalizeKey("P1.0"))
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(" "))
	assert.True(t, IsMissing("NaN"))
	assert.False(t, IsMissing("0"))
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.xlsx")
	f := excelize.NewFile()
	_, err := f.NewSheet("Depot_Zone")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Depot_Zone", "A1", &[]any{"PLANT", "LOCATION"}))
	require.NoError(t, f.SetSheetRow("Depot_Zone", "A2", &[]any{1101, "Pune"}))
	require.NoError(t, f.SetSheetRow("Depot_Zone", "A4", &[]any{"D200", "Nagpur"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path, "depot_zone")
	require.NoError(t, err)

	assert.Equal(t, "mapping.xlsx#Depot_Zone", tbl.Name)
	assert.Equal(t, []string{"PLANT", "LOCATION"}, tbl.Header)
	require.Equal(t, 2, tbl.Len(), "blank rows are dropped")
	assert.Equal(t, "1101", tbl.Get(0, "plant"))
	assert.Equal(t, "Nagpur", tbl.Get(1, "location"))

	_, err = ReadFile(path, "Email_IDs")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	content := "\xEF\xBB\xBFPlant,Billing_Doc,Remark\nP1,B1,\"late, dock\"\n\nP2,B2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := ReadFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "Plant", tbl.Header[0])
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "late, dock", tbl.Get(0, "remark"))
	assert.Equal(t, "B2", tbl.Get(1, "billing_doc"))
}

func TestReadFileRejectsUnknownExtension(t *testing.T) {
	_, err := ReadFile("report.pdf", "")
	assert.Error(t, err)
}
