package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

func sampleTable() Table {
	checkedOut := time.Date(2026, 3, 2, 17, 45, 0, 0, time.UTC)
	return Table{
		Sheet: "Visits",
		Columns: []Column{
			{Header: "Dealer", Width: 28},
			{Header: "Check-in"},
			{Header: "Check-out"},
			{Header: "Order value"},
		},
		Rows: [][]any{
			{"Ferretería Central", time.Date(2026, 3, 2, 17, 5, 0, 0, time.UTC), &checkedOut, decimal.RequireFromString("1250.50")},
			{"Abarrotes, La Paz", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), (*time.Time)(nil), decimal.NullDecimal{}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("pdf")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFormatFilename(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.FixedZone("CST", -6*3600))
	assert.Equal(t, "visits-2026-03-02.csv", FormatCSV.Filename("visits", at))
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleTable()))

	want := "Dealer,Check-in,Check-out,Order value\n" +
		"Ferretería Central,2026-03-02 17:05,2026-03-02 17:45,1250.5\n" +
		"\"Abarrotes, La Paz\",2026-03-02 18:00,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleTable()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Visits"}, f.GetSheetList())
	rows, err := f.GetRows("Visits")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Dealer", "Check-in", "Check-out", "Order value"}, rows[0])
	assert.Equal(t, "Ferretería Central", rows[1][0])
	assert.Equal(t, "2026-03-02 17:45", rows[1][2])
	assert.Equal(t, "1250.5", rows[1][3])
	assert.Equal(t, "Abarrotes, La Paz", rows[2][0])

	width, err := f.GetColWidth("Visits", "A")
	require.NoError(t, err)
	assert.InDelta(t, 28, width, 0.01)
}

func TestWriteXLSXDefaultSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Table{Columns: []Column{{Header: "Rep"}}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(defaultSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Rep", v)
}
