package export

import (
	"fmt"
	"strings"
)

// Format names a supported rendering.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts csv or pdf, case-insensitively. Empty defaults to csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Column describes one field of a dataset. Width is a relative weight used by the PDF
// layout; zero counts as one.
type Column struct {
	Key   string
	Label string
	Width float64
}

func (c Column) heading() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// Dataset is tabular export content. Rows are keyed by Column.Key; missing keys render empty.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

// Record returns the row values in column order.
func (d Dataset) Record(row map[string]string) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the renderer for format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
