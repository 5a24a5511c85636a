// Package report turns an aggregate batch report into a per-model metrics table
// and renders it as text, markdown, CSV or JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Formats accepted by Write.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

// ExportFormats maps the formats written by Export to their file extensions.
var ExportFormats = []struct{ Format, Ext string }{
	{FormatMarkdown, ".md"},
	{FormatCSV, ".csv"},
	{FormatJSON, ".json"},
}

// Generate reads the aggregate report at path and writes its table to w.
func Generate(path, format string, w io.Writer) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading aggregate report: %w", err)
	}
	t := BuildTable(Parse(string(data)))
	return t, Write(t, format, w)
}

func Write(t Table, format string, w io.Writer) error {
	switch format {
	case FormatMarkdown:
		return writeMarkdown(t, w)
	case FormatCSV:
		return writeCSV(t, w)
	case FormatJSON:
		return writeJSON(t, w)
	case FormatTable, "":
		return writeTable(t, w)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Export writes prefix.md, prefix.csv and prefix.json and returns their paths.
func Export(t Table, prefix string) ([]string, error) {
	var paths []string
	for _, f := range ExportFormats {
		path := prefix + f.Ext
		if err := writeFile(path, t, f.Format); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, t Table, format string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(t, format, fh); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fh.Close()
}

func writeTable(t Table, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == "" {
				c = "-"
			}
			cells[i] = c
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(t Table, w io.Writer) error {
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Columns, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("---|", len(t.Columns)))
	for _, row := range t.Rows {
		if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | ")); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(t Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// writeJSON emits one object per row; empty cells are left out.
func writeJSON(t Table, w io.Writer) error {
	rows := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(row))
		for i, c := range row {
			if c != "" && i < len(t.Columns) {
				obj[t.Columns[i]] = c
			}
		}
		rows = append(rows, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
