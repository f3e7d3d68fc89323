package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/atomicbase/directory/data"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data as JSON, or calls text for the text format.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// writeRows prints one line per entry: id, sort name and any extra columns.
func writeRows(w io.Writer, rows []data.Row, extra ...string) {
	for _, r := range rows {
		line := []string{fmt.Sprint(r["id"]), display(r)}
		for _, col := range extra {
			if v, ok := r[col]; ok && v != nil {
				line = append(line, fmt.Sprintf("%s=%v", col, v))
			}
		}
		fmt.Fprintln(w, strings.Join(line, "\t"))
	}
}

func display(r data.Row) string {
	if s, ok := r["sort_column"].(string); ok && s != "" {
		if first, ok := r["first_name"].(string); ok && first != "" {
			return s + ", " + first
		}
		return s
	}
	return fmt.Sprint(r["slug"])
}

func writeIDs(w io.Writer, ids []int64) {
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}
