package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/viant/calcatime/aggregate"
)

// Format selects the output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// Record is the serialized form of one grouped total.
type Record struct {
	Start    string  `json:"start"`
	End      string  `json:"end"`
	Group    string  `json:"group"`
	Duration float64 `json:"duration"`
}

// Records converts totals to dated records.
func Records(rows []aggregate.GroupedTotal) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			Start:    row.Range.Start.Format(time.DateOnly),
			End:      row.Range.End.Format(time.DateOnly),
			Group:    row.Group,
			Duration: row.Duration,
		})
	}
	return out
}

// Write renders rows to w in the given format.
func Write(w io.Writer, rows []aggregate.GroupedTotal, f Format) error {
	switch f {
	case JSON:
		return writeJSON(w, Records(rows))
	case CSV, "":
		return writeCSV(w, Records(rows))
	}
	return fmt.Errorf("unsupported output format %q", f)
}

func writeJSON(w io.Writer, records []Record) error {
	return json.NewEncoder(w).Encode(records)
}

func writeCSV(w io.Writer, records []Record) error {
	if _, err := io.WriteString(w, "start,end,group,duration\n"); err != nil {
		return err
	}
	for _, rec := range records {
		line := strings.Join([]string{quote(rec.Start), quote(rec.End), quote(rec.Group), Hours(rec.Duration)}, ",")
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Hours formats a decimal hour count that always carries a fraction, e.g. 3.0 or 1.25.
func Hours(h float64) string {
	s := strconv.FormatFloat(h, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
