package detector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
)

var header = []string{"MQ_KURZNAME", ColumnID, "DET_NAME_NEU", ColumnStreet, ColumnDirection, ColumnLongitude, ColumnLatitude}

func sampleRows() [][]string {
	return [][]string{
		header,
		{"TE001", "100101010000167", "TE001_HF1", "A100", "Nord", "13.3011", "52.4845"},
		{"TE002", "100101010000268", "TE002_HF1", "Frankfurter Allee", "Ost", "13,4729", "52,5147"},
		{"TE003", "100101010000369", "TE003_HF1", "Unter den Linden", "West", "", "52.5170"},
		{"TE004", "100101010000470", "TE004_HF1", "Nirgendwo", "Süd", "abc", "52.5"},
		{"TE001", "100101010000167", "TE001_HF2", "A100 duplicate", "Süd", "13.0", "52.0"},
	}
}

func TestNewCatalog(t *testing.T) {
	cat, err := NewCatalog(sampleRows())
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, 2, cat.Dropped)
	assert.Equal(t, 1, cat.Duplicates)

	m, ok := cat.Get("100101010000167")
	require.True(t, ok)
	assert.Equal(t, "A100", m.StreetName)
	assert.Equal(t, "Nord", m.Direction)
	assert.Equal(t, 13.3011, m.Longitude)

	m, ok = cat.Get("100101010000268")
	require.True(t, ok)
	assert.InDelta(t, 13.4729, m.Longitude, 1e-9)
	assert.InDelta(t, 52.5147, m.Latitude, 1e-9)

	_, ok = cat.Get("100101010000369")
	assert.False(t, ok)
}

func TestNewCatalogMissingColumn(t *testing.T) {
	_, err := NewCatalog([][]string{{ColumnID, ColumnStreet}})
	assert.Error(t, err)

	_, err = NewCatalog(nil)
	assert.Error(t, err)
}

func TestLoadCatalogCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stammdaten.csv")
	content := "\ufeffDET_ID15;STRASSE;RICHTUNG;LÄNGE (WGS84);BREITE (WGS84)\n100101010000167;A100;Nord;13.3011;52.4845\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cat, err := LoadCatalog(path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
}

func TestLoadCatalogWorkbook(t *testing.T) {
	f := excelize.NewFile()
	_, err := f.NewSheet(DefaultSheet)
	require.NoError(t, err)
	for i, row := range sampleRows() {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(DefaultSheet, cell, &cells))
	}
	path := filepath.Join(t.TempDir(), "stammdaten.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cat, err := LoadCatalog(path, DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	_, err = LoadCatalog(path, "NoSuchSheet")
	assert.Error(t, err)
}

func TestLoadCatalogUnsupportedFormat(t *testing.T) {
	_, err := LoadCatalog("stammdaten.parquet", "")
	assert.Error(t, err)
}

func TestEnrichDropsUnknownDetectors(t *testing.T) {
	cat, err := NewCatalog(sampleRows())
	require.NoError(t, err)

	day := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	readings := []kpi.Reading{
		{DetectorID: "100101010000167", Day: day, Hour: 8, Quality: 1},
		{DetectorID: "100101010000268", Day: day, Hour: 7, Quality: 1},
		{DetectorID: "100101010000369", Day: day, Hour: 8, Quality: 1},
		{DetectorID: "999", Day: day, Hour: 8, Quality: 1},
	}

	rows, stats := Enrich(readings, cat)
	assert.Equal(t, 2, stats.Joined)
	assert.Equal(t, 2, stats.MissingMetadata)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-12-01 08:00", rows[0].Timestamp)
	assert.Equal(t, "A100", rows[0].StreetName)

	slices := SplitByTimestamp(rows)
	require.Len(t, slices, 2)
	assert.Equal(t, "2024-12-01 07:00", slices[0].Timestamp)
	assert.Equal(t, "2024-12-01 08:00", slices[1].Timestamp)
	assert.Len(t, slices[1].Rows, 1)
}
