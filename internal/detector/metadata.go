package detector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/berlin-traffic-map/roadkpi/internal/geo"
	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
)

// DefaultSheet is the sheet holding detector master data in the Berlin workbook
const DefaultSheet = "Stammdaten_TEU_20220720"

// Column names of the detector master data table
const (
	ColumnID        = "DET_ID15"
	ColumnLongitude = "LÄNGE (WGS84)"
	ColumnLatitude  = "BREITE (WGS84)"
	ColumnStreet    = "STRASSE"
	ColumnDirection = "RICHTUNG"
)

// Metadata is the static description of one detector
type Metadata struct {
	DetectorID string
	Longitude  float64
	Latitude   float64
	StreetName string
	Direction  string
}

// Catalog indexes detector metadata by normalized id
type Catalog struct {
	byID map[string]Metadata

	// Dropped counts rows without usable coordinates
	Dropped int
	// Duplicates counts ids seen more than once; the first row is kept
	Duplicates int
}

// Get returns the metadata for a detector id
func (c *Catalog) Get(id string) (Metadata, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Len returns the number of detectors with coordinates
func (c *Catalog) Len() int {
	return len(c.byID)
}

// LoadCatalog reads detector metadata from an .xlsx workbook or a ';'-separated .csv file
func LoadCatalog(path, sheet string) (*Catalog, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path, sheet)
	case ".csv", ".txt":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported metadata format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return NewCatalog(rows)
}

// NewCatalog builds a catalog from a header row followed by data rows
func NewCatalog(rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, errors.New("metadata table is empty")
	}

	idx := makeIndex(rows[0])
	for _, col := range []string{ColumnID, ColumnLongitude, ColumnLatitude} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("metadata table has no %q column", col)
		}
	}

	cat := &Catalog{byID: make(map[string]Metadata, len(rows)-1)}
	for _, record := range rows[1:] {
		id := kpi.NormalizeDetectorID(getField(record, idx, ColumnID))
		if id == "" {
			continue
		}

		lon, lonOK := parseCoordinate(getField(record, idx, ColumnLongitude))
		lat, latOK := parseCoordinate(getField(record, idx, ColumnLatitude))
		if !lonOK || !latOK || !geo.ValidLonLat(lon, lat) {
			cat.Dropped++
			continue
		}

		if _, exists := cat.byID[id]; exists {
			cat.Duplicates++
			continue
		}

		cat.byID[id] = Metadata{
			DetectorID: id,
			Longitude:  lon,
			Latitude:   lat,
			StreetName: getField(record, idx, ColumnStreet),
			Direction:  getField(record, idx, ColumnDirection),
		}
	}

	if cat.Duplicates > 0 {
		log.Printf("Warning: %d duplicate detector ids in metadata, kept first occurrence", cat.Duplicates)
	}
	return cat, nil
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = DefaultSheet
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func parseCoordinate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
