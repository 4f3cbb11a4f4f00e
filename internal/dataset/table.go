// Package dataset loads experiment unit tables leniently, preserving what
// was actually present in the input so validation checks can observe missing
// columns and missing values instead of failing at parse time.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"experiment-lab/internal/domain"
)

// CanonicalColumns is the column set a complete unit table carries, in
// canonical order.
var CanonicalColumns = []string{
	"unit_id",
	"experiment_id",
	"variant",
	"assigned_at",
	"first_exposed_at",
	"eligible",
	"clicked",
	"converted",
	"bounced",
	"session_seconds",
	"sessions",
	"device_category",
	"country",
}

// Row is one record as loaded. A column is "missing" in a row when the key
// is absent or the value is empty.
type Row map[string]string

// Has reports whether the row carries a non-empty value for col.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != ""
}

// Table is an immutable snapshot of loaded rows plus the columns observed in
// the input. Checks and conversions never mutate it.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the input carried col.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ReadJSONL reads a table from newline-delimited JSON objects. Scalar values
// are normalized to strings; JSON null means the value is missing. Observed
// columns are the sorted union of keys across all rows.
func ReadJSONL(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	colSet := make(map[string]struct{})
	var rows []Row
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("parse jsonl line %d: %w", line, err)
		}
		row := make(Row, len(obj))
		for k, v := range obj {
			colSet[k] = struct{}{}
			if v == nil {
				continue
			}
			row[k] = scalarString(v)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}

	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	return &Table{Columns: cols, Rows: rows}, nil
}

// ReadCSV reads a table from CSV with a header row. Empty cells are missing
// values.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) && rec[i] != "" {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: header, Rows: rows}, nil
}

// ReadFile reads a table from a .jsonl or .csv file based on the extension.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	if len(path) > 4 && path[len(path)-4:] == ".csv" {
		return ReadCSV(f)
	}
	return ReadJSONL(f)
}

// FromUnits builds a table from typed units. Every canonical column is
// present, so schema and null checks pass trivially, which is correct for
// data read back from typed storage.
func FromUnits(units []*domain.ExperimentUnit) *Table {
	rows := make([]Row, 0, len(units))
	for _, u := range units {
		rows = append(rows, Row{
			"unit_id":          u.UnitID,
			"experiment_id":    u.ExperimentID,
			"variant":          string(u.Variant),
			"assigned_at":      strconv.FormatInt(u.AssignedAt, 10),
			"first_exposed_at": strconv.FormatInt(u.FirstExposedAt, 10),
			"eligible":         strconv.FormatBool(u.Eligible),
			"clicked":          strconv.FormatBool(u.Clicked),
			"converted":        strconv.FormatBool(u.Converted),
			"bounced":          strconv.FormatBool(u.Bounced),
			"session_seconds":  strconv.FormatFloat(u.SessionSeconds, 'g', -1, 64),
			"sessions":         strconv.Itoa(u.Sessions),
			"device_category":  u.DeviceCategory,
			"country":          u.Country,
		})
	}
	cols := make([]string, len(CanonicalColumns))
	copy(cols, CanonicalColumns)
	return &Table{Columns: cols, Rows: rows}
}

// Units converts the table into typed units. Unlike loading, conversion is
// strict: a missing or malformed value in any canonical column is an error.
// Extra columns are ignored.
func (t *Table) Units() ([]*domain.ExperimentUnit, error) {
	units := make([]*domain.ExperimentUnit, 0, len(t.Rows))
	for i, row := range t.Rows {
		u, err := rowToUnit(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		units = append(units, u)
	}
	return units, nil
}

func rowToUnit(row Row) (*domain.ExperimentUnit, error) {
	u := &domain.ExperimentUnit{
		UnitID:         row["unit_id"],
		ExperimentID:   row["experiment_id"],
		Variant:        domain.Variant(row["variant"]),
		DeviceCategory: row["device_category"],
		Country:        row["country"],
	}
	if u.UnitID == "" {
		return nil, fmt.Errorf("missing unit_id")
	}

	var err error
	if u.AssignedAt, err = parseInt64(row, "assigned_at"); err != nil {
		return nil, err
	}
	if u.FirstExposedAt, err = parseInt64(row, "first_exposed_at"); err != nil {
		return nil, err
	}
	if u.Eligible, err = parseBool(row, "eligible"); err != nil {
		return nil, err
	}
	if u.Clicked, err = parseBool(row, "clicked"); err != nil {
		return nil, err
	}
	if u.Converted, err = parseBool(row, "converted"); err != nil {
		return nil, err
	}
	if u.Bounced, err = parseBool(row, "bounced"); err != nil {
		return nil, err
	}
	if u.SessionSeconds, err = parseFloat(row, "session_seconds"); err != nil {
		return nil, err
	}
	sessions, err := parseInt64(row, "sessions")
	if err != nil {
		return nil, err
	}
	u.Sessions = int(sessions)

	return u, nil
}

func parseBool(row Row, col string) (bool, error) {
	v, ok := row[col]
	if !ok {
		return false, fmt.Errorf("missing %s", col)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s %q: %w", col, v, err)
	}
	return b, nil
}

func parseInt64(row Row, col string) (int64, error) {
	v, ok := row[col]
	if !ok {
		return 0, fmt.Errorf("missing %s", col)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", col, v, err)
	}
	return n, nil
}

func parseFloat(row Row, col string) (float64, error) {
	v, ok := row[col]
	if !ok {
		return 0, fmt.Errorf("missing %s", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", col, v, err)
	}
	return f, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		// json numbers decode as float64; keep integral values (timestamps,
		// counts) in plain decimal form so ParseInt accepts them
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
