package kpi

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultQualityThreshold is the minimum qualitaet a reading needs to be used
const DefaultQualityThreshold = 0.75

const dayLayout = "02.01.2006"

var requiredColumns = []string{"detid_15", "tag", "stunde", "qualitaet"}

// Load reads a ';'-separated detector file, gzip-compressed or plain,
// and keeps rows with quality at or above the threshold.
func Load(path string, threshold float64) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open kpi file: %w", err)
	}
	defer f.Close()

	return LoadReader(f, threshold)
}

// LoadReader is Load for an already opened stream.
func LoadReader(r io.Reader, threshold float64) (*Dataset, error) {
	br := bufio.NewReader(r)

	// gzip magic bytes
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	reader := csv.NewReader(src)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := makeIndex(header)
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	ds := &Dataset{Columns: make(map[string]bool)}
	var kpiCols []string
	for name := range idx {
		if isKPIColumn(name) {
			ds.Columns[name] = true
			kpiCols = append(kpiCols, name)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				ds.Stats.Rows++
				ds.Stats.Malformed++
				continue
			}
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		ds.Stats.Rows++

		reading, err := parseReading(record, idx, kpiCols)
		if err != nil {
			ds.Stats.Malformed++
			if ds.Stats.Malformed <= 10 {
				log.Printf("Warning: skipping line %d: %v", line, err)
			}
			continue
		}
		if reading.Quality < threshold {
			ds.Stats.BelowQuality++
			continue
		}

		ds.Readings = append(ds.Readings, reading)
	}
	ds.Stats.Kept = len(ds.Readings)

	if ds.Stats.Malformed > 10 {
		log.Printf("Warning: %d malformed kpi rows skipped in total", ds.Stats.Malformed)
	}
	return ds, nil
}

func parseReading(record []string, idx map[string]int, kpiCols []string) (Reading, error) {
	id := NormalizeDetectorID(getField(record, idx, "detid_15"))
	if id == "" {
		return Reading{}, errors.New("empty detector id")
	}

	day, err := time.Parse(dayLayout, getField(record, idx, "tag"))
	if err != nil {
		return Reading{}, fmt.Errorf("invalid day: %w", err)
	}

	hour, err := strconv.Atoi(getField(record, idx, "stunde"))
	if err != nil || hour < 0 || hour > 23 {
		return Reading{}, fmt.Errorf("invalid hour %q", getField(record, idx, "stunde"))
	}

	quality, ok := parseNumber(getField(record, idx, "qualitaet"))
	if !ok {
		return Reading{}, fmt.Errorf("invalid quality %q", getField(record, idx, "qualitaet"))
	}

	values := make(map[string]float64, len(kpiCols))
	for _, col := range kpiCols {
		if v, ok := parseNumber(getField(record, idx, col)); ok {
			values[col] = v
		}
	}

	return Reading{
		DetectorID: id,
		Day:        day,
		Hour:       hour,
		Quality:    quality,
		Values:     values,
	}, nil
}

// isKPIColumn matches the per-vehicle-class count and speed columns
func isKPIColumn(name string) bool {
	return strings.HasPrefix(name, "q_") || strings.HasPrefix(name, "v_")
}

// parseNumber accepts '.' or ',' decimal separators; empty and NaN are absent
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// NormalizeDetectorID canonicalizes detector identifiers so values read as
// text and as spreadsheet numbers (e.g. "1.00101E+14" or "100101010000167.0") join.
func NormalizeDetectorID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
