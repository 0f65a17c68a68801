package warehouse

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moolen/insight/internal/capability"
)

// Rows is a materialized result set. Values are JSON-like scalars
// (string, float64, int64, bool, nil).
type Rows struct {
	Columns []string
	Records []map[string]interface{}
}

// Len returns the number of records.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// String returns a column as text. Missing and NULL values are "".
func (r *Rows) String(i int, col string) string {
	switch v := r.Records[i][col].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a numeric column. Numeric strings are parsed; anything else is 0.
func (r *Rows) Float(i int, col string) float64 {
	switch v := r.Records[i][col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	default:
		return 0
	}
}

// Int returns an integer column, truncating floats.
func (r *Rows) Int(i int, col string) int64 {
	switch v := r.Records[i][col].(type) {
	case int64:
		return v
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return int64(r.Float(i, col))
}

// Bool returns a boolean column; "true"/"t"/"1" strings count as true.
func (r *Rows) Bool(i int, col string) bool {
	switch v := r.Records[i][col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b || v == "t"
	case float64:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

// decodeJSONRows parses toolbox text content: a JSON array of objects, a single
// object, or null for no rows.
func decodeJSONRows(texts []string) (*Rows, error) {
	rows := &Rows{}
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" || text == "null" || text == "[]" {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		var records []map[string]interface{}
		switch text[0] {
		case '[':
			if err := dec.Decode(&records); err != nil {
				return nil, capability.Malformed("toolbox rows: %v", err)
			}
		case '{':
			var rec map[string]interface{}
			if err := dec.Decode(&rec); err != nil {
				return nil, capability.Malformed("toolbox row: %v", err)
			}
			records = append(records, rec)
		default:
			return nil, capability.Malformed("toolbox returned non-JSON text: %.120s", text)
		}
		for _, rec := range records {
			rows.Records = append(rows.Records, normalizeRecord(rec))
		}
	}
	rows.Columns = columnsOf(rows.Records)
	return rows, nil
}

func normalizeRecord(rec map[string]interface{}) map[string]interface{} {
	for k, v := range rec {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				rec[k] = i
			} else if f, err := n.Float64(); err == nil {
				rec[k] = f
			}
		}
	}
	return rec
}

func columnsOf(records []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
