package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table writes column-aligned rows. The header and divider are written on
// the first Row, so a table with no rows prints nothing.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	indent  string
	started bool
	rows    int
}

// NewTable returns a table writing to out.
func NewTable(out io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// Indent prefixes every line with s.
func (t *Table) Indent(s string) *Table {
	t.indent = s
	return t
}

// Row writes one row. Missing trailing cells are left blank.
func (t *Table) Row(values ...string) {
	if !t.started {
		t.started = true
		fmt.Fprintln(t.w, t.indent+strings.Join(t.headers, "\t"))
		dashes := make([]string, len(t.headers))
		for i, h := range t.headers {
			dashes[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(t.w, t.indent+strings.Join(dashes, "\t"))
	}
	for len(values) < len(t.headers) {
		values = append(values, "")
	}
	fmt.Fprintln(t.w, t.indent+strings.Join(values, "\t"))
	t.rows++
}

// Len returns the number of rows written.
func (t *Table) Len() int { return t.rows }

// Flush writes buffered output.
func (t *Table) Flush() error {
	if !t.started {
		return nil
	}
	return t.w.Flush()
}
