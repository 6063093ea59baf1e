package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
)

// Unknown is shown for attendance records whose identity no longer exists.
const Unknown = "unknown"

// Row maps column names to values.
type Row map[string]Value

// Table is a set of rows with columns discovered once when it is built.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable discovers the columns of rows. preferred columns come first when
// present, the remaining ones follow sorted by name.
func NewTable(rows []Row, preferred ...string) *Table {
	seen := make(map[string]bool)
	present := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			present[k] = true
		}
	}

	var columns []string
	for _, c := range preferred {
		if present[c] && !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	var rest []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	slices.Sort(rest)
	return &Table{Columns: append(columns, rest...), Rows: rows}
}

// Cell returns the value of a column, Null when the row lacks it.
func (t *Table) Cell(row int, column string) Value {
	return t.Rows[row][column]
}

// WriteText writes an aligned plain-text table.
func (t *Table) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Columns, "\t")))
	for _, r := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = r[c].Text()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// WriteJSON writes the rows as a JSON array of objects with every column present.
func (t *Table) WriteJSON(w io.Writer) error {
	out := make([]map[string]Value, len(t.Rows))
	for i, r := range t.Rows {
		obj := make(map[string]Value, len(t.Columns))
		for _, c := range t.Columns {
			obj[c] = r[c]
		}
		out[i] = obj
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Write renders the table in the named format, text or json.
func (t *Table) Write(w io.Writer, format string) error {
	switch format {
	case "", "text", "table":
		return t.WriteText(w)
	case "json":
		return t.WriteJSON(w)
	}
	return fmt.Errorf("unknown format %q", format)
}

// IdentityColumns is the column order of identity tables.
var IdentityColumns = []string{"id", "name", "id_number", "pin", "admin", "embeddings", "created_at"}

// IdentityRows converts identities. withVectors adds the raw embeddings as a list of vectors.
func IdentityRows(identities []database.Identity, withVectors bool) []Row {
	rows := make([]Row, 0, len(identities))
	for _, i := range identities {
		r := Row{
			"id":         Int(i.ID),
			"name":       String(i.DisplayName),
			"id_number":  OptionalString(i.IDNumber),
			"pin":        OptionalString(i.PIN),
			"admin":      Bool(i.IsAdmin),
			"embeddings": Int(int64(len(i.Embeddings))),
		}
		if !i.CreatedAt.IsZero() {
			r["created_at"] = Time(i.CreatedAt)
		}
		if withVectors {
			vectors := make([]Value, len(i.Embeddings))
			for j, e := range i.Embeddings {
				vectors[j] = Vector(e)
			}
			r["vectors"] = List(vectors...)
		}
		rows = append(rows, r)
	}
	return rows
}

// AttendanceColumns is the column order of attendance tables.
var AttendanceColumns = []string{"id", "timestamp", "identity_id", "name", "method"}

// InWindow returns the records with since <= timestamp < until. A zero bound is open.
func InWindow(records []database.AttendanceRecord, since, until time.Time) []database.AttendanceRecord {
	out := records[:0:0]
	for _, rec := range records {
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && !rec.Timestamp.Before(until) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// AttendanceRows converts records, resolving names from identities. A record
// pointing at a missing identity gets the name Unknown.
func AttendanceRows(records []database.AttendanceRecord, identities []database.Identity) []Row {
	names := make(map[int64]string, len(identities))
	for _, i := range identities {
		names[i.ID] = i.DisplayName
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		name, ok := names[rec.IdentityID]
		if !ok {
			name = Unknown
		}
		r := Row{
			"timestamp":   Time(rec.Timestamp),
			"identity_id": Int(rec.IdentityID),
			"name":        String(name),
			"method":      String(string(rec.Method)),
		}
		if rec.ID != 0 {
			r["id"] = Int(rec.ID)
		}
		rows = append(rows, r)
	}
	return rows
}
