package controlpoint

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

// Record is one parsed line of a control-point file.
type Record struct {
	Name     string
	Position Position
}

// ParseRecords reads "name lon lat height epoch" records separated by
// spaces, tabs or commas. Blank lines and lines starting with '#' are
// ignored. A line with fewer than five fields is a format error; a line
// whose numeric fields do not parse is skipped.
func ParseRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 5 {
			return nil, fmt.Errorf("%w: line %d: expected 5 fields, got %d",
				griderr.ErrFormat, lineNo, len(fields))
		}
		vals, ok := parseFloats(fields[1:5])
		if !ok {
			monitoring.Logf("[ControlPoints] skipping line %d: %q", lineNo, line)
			continue
		}
		records = append(records, Record{
			Name:     fields[0],
			Position: Position{Lon: vals[0], Lat: vals[1], Height: vals[2], Epoch: vals[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", griderr.ErrIO, err)
	}
	return records, nil
}

func parseFloats(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// ReadSource merges every record of r into the source side of s and
// returns the number of records read.
func (s *Set) ReadSource(r io.Reader) (int, error) {
	records, err := ParseRecords(r)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		s.MergeSource(rec.Name, rec.Position)
	}
	return len(records), nil
}

// ReadTarget merges every record of r into the target side of s and
// returns the number of records read.
func (s *Set) ReadTarget(r io.Reader) (int, error) {
	records, err := ParseRecords(r)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		s.MergeTarget(rec.Name, rec.Position)
	}
	return len(records), nil
}

// LoadSource reads a source file through fsys.
func (s *Set) LoadSource(fsys fsutil.FileSystem, path string) (int, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read source %s: %v", griderr.ErrIO, path, err)
	}
	n, err := s.ReadSource(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", path, err)
	}
	return n, nil
}

// LoadTarget reads a target file through fsys.
func (s *Set) LoadTarget(fsys fsutil.FileSystem, path string) (int, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read target %s: %v", griderr.ErrIO, path, err)
	}
	n, err := s.ReadTarget(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("target %s: %w", path, err)
	}
	return n, nil
}
