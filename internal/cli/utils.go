// Package cli provides output helpers for the Alexandria CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hyperjump/alexandria/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// Status is the payload of GET /status.
type Status struct {
	Fragments      int64  `json:"fragments"`
	Books          int64  `json:"books"`
	DatabasePath   string `json:"database_path,omitempty"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

// WriteFragmentList writes the ordered listing of book to w in the given format.
func WriteFragmentList(w io.Writer, book uuid.UUID, list []models.Simple, format OutputFormat) error {
	if format == OutputJSON {
		if list == nil {
			list = []models.Simple{}
		}
		return writeJSON(w, list)
	}
	fmt.Fprintf(w, "book %s: %d fragments\n", book, len(list))
	if len(list) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Rank", "Fragment"})
	for _, s := range list {
		tw.AppendRow(table.Row{s.Rank, s.ID.String()})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	tw.Render()
	return nil
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "fragments:          %d   # stored fragments\n", status.Fragments)
	fmt.Fprintf(w, "books:              %d   # books with at least one fragment\n", status.Books)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database, WAL and shm files\n", *status.DiskUsageBytes)
	}
	if status.DatabasePath != "" {
		fmt.Fprintf(w, "database_path:      %s\n", status.DatabasePath)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
