package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tonimelisma/phylomerge/internal/merge"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// reportJSON is the JSON shape of a merge report.
type reportJSON struct {
	Study   string         `json:"study"`
	Source  string         `json:"source,omitempty"`
	Created map[string]int `json:"created,omitempty"`
	Updated map[string]int `json:"updated,omitempty"`
	Removed map[string]int `json:"removed,omitempty"`
	Stamped int            `json:"stamped"`
	Error   string         `json:"error,omitempty"`
}

func newReportJSON(source string, rep *merge.Report, err error) reportJSON {
	out := reportJSON{Source: source}

	if err != nil {
		out.Error = err.Error()
	}

	if rep == nil {
		return out
	}

	out.Study = rep.StudyExternalID
	out.Stamped = rep.Stamped
	out.Created = kindCounts(rep.Created)
	out.Updated = kindCounts(rep.Updated)
	out.Removed = kindCounts(rep.Removed)

	return out
}

func kindCounts[K ~string](m map[K]int) map[string]int {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}

	return out
}

// printReport writes a per-kind summary of rep.
func printReport(w io.Writer, rep *merge.Report) {
	if !rep.Changed() {
		fmt.Fprintf(w, "study %s: no changes\n", rep.StudyExternalID)
		return
	}

	fmt.Fprintf(w, "study %s: %d entities stamped\n", rep.StudyExternalID, rep.Stamped)

	rows := make([][]string, 0, len(rep.Kinds()))
	for _, k := range rep.Kinds() {
		rows = append(rows, []string{
			string(k),
			strconv.Itoa(rep.Created[k]),
			strconv.Itoa(rep.Updated[k]),
			strconv.Itoa(rep.Removed[k]),
		})
	}

	printTable(w, []string{"KIND", "CREATED", "UPDATED", "REMOVED"}, rows)
}
