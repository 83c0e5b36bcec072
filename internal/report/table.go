// Package report renders command results as aligned text tables or JSON.
package report

import (
	"encoding/json"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table is a command result laid out as rows under a header. Footer, when
// set, is printed under the rows and carries totals.
type Table struct {
	Header []string
	Rows   [][]string
	Footer []string
}

// NewTable returns an empty table with the given header.
func NewTable(header ...string) *Table {
	return &Table{Header: header, Rows: make([][]string, 0)}
}

// AddRow appends a row, padding or cutting it to the header width.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Header))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Write renders the table without borders. Headers and footers are
// upper-cased.
func (t *Table) Write(w io.Writer) error {
	tw := newWriter(w, "")
	tw.SetHeader(t.Header)
	tw.SetAutoFormatHeaders(true)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	if len(t.Footer) > 0 {
		tw.SetFooter(t.Footer)
		tw.SetFooterAlignment(tablewriter.ALIGN_LEFT)
	}
	tw.AppendBulk(t.Rows)
	tw.Render()
	return nil
}

// Fields is an ordered list of labelled values, such as run totals.
type Fields [][2]string

// Add appends a labelled value.
func (f *Fields) Add(label, value string) { *f = append(*f, [2]string{label, value}) }

// Write renders one "label: value" line per field, values aligned.
func (f Fields) Write(w io.Writer) error {
	tw := newWriter(w, ":")
	tw.SetAutoFormatHeaders(false)
	for _, p := range f {
		tw.Append([]string{p[0], p[1]})
	}
	tw.Render()
	return nil
}

func newWriter(w io.Writer, sep string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetBorder(false)
	tw.SetHeaderLine(false)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator(sep)
	tw.SetRowSeparator("")
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	return tw
}

// PrintJSON writes data as indented JSON.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
