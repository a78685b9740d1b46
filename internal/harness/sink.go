package harness

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{"processed", "memory_usage_gb", "elapsed_secs"}

var ErrSealed = errors.New("sink already persisted")

// MeasurementRow is one point of the series, recorded after a batch.
type MeasurementRow struct {
	Processed     int     `json:"processed"`
	MemoryUsageGB float64 `json:"memory_usage_gb"`
	ElapsedSecs   float64 `json:"elapsed_secs"`
}

// Sink accumulates the series in memory and writes it once.
type Sink struct {
	mu     sync.Mutex
	rows   []MeasurementRow
	sealed bool
}

func NewSink(capacity int) *Sink {
	return &Sink{rows: make([]MeasurementRow, 0, max(capacity, 0))}
}

func (s *Sink) Append(row MeasurementRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSealed
	}
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns a copy of the series in append order.
func (s *Sink) Rows() []MeasurementRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MeasurementRow, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Persist writes the series to path through a temporary file in the same
// directory, so path holds either the complete series or nothing new.
func (s *Sink) Persist(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSealed
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return newError(KindFilesystem, "create temp artifact", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	if err := WriteCSV(f, s.rows); err != nil {
		f.Close()
		return newError(KindFilesystem, "write artifact", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return newError(KindFilesystem, "sync artifact", err)
	}
	if err := f.Close(); err != nil {
		return newError(KindFilesystem, "close artifact", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return newError(KindFilesystem, "rename artifact", err)
	}
	committed = true
	s.sealed = true
	return nil
}

// RemoveStale deletes an artifact left by a previous run. A missing file is fine.
func RemoveStale(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError(KindFilesystem, "remove stale artifact", err)
	}
	return nil
}

func WriteCSV(w io.Writer, rows []MeasurementRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Processed),
			fmtFloat(r.MemoryUsageGB),
			fmtFloat(r.ElapsedSecs),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a series written by WriteCSV.
func ReadCSV(r io.Reader) ([]MeasurementRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range csvHeader {
		if header[i] != h {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], h)
		}
	}

	var rows []MeasurementRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		processed, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: processed: %w", line, err)
		}
		mem, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: memory_usage_gb: %w", line, err)
		}
		elapsed, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: elapsed_secs: %w", line, err)
		}
		rows = append(rows, MeasurementRow{Processed: processed, MemoryUsageGB: mem, ElapsedSecs: elapsed})
	}
	return rows, nil
}

// ReadCSVFile reads a persisted series from path.
func ReadCSVFile(path string) ([]MeasurementRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
