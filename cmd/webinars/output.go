package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"webinar-directory/internal/viewmodel"
)

// printer handles table or JSON output.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{format: format, w: w}
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// table writes rows using tabwriter. header is the first row.
func (p *printer) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (p *printer) view(v viewmodel.View) error {
	if p.format == "json" {
		return p.json(v)
	}
	rows := make([][]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		mark := " "
		if r.Highlighted {
			mark = ">"
		}
		liked := ""
		if r.Liked {
			liked = "*"
		}
		duration := ""
		if r.Record.DurationMin > 0 {
			duration = strconv.Itoa(r.Record.DurationMin)
		}
		rows = append(rows, []string{
			mark,
			r.Record.ID,
			truncate(r.Record.Title, 48),
			r.Record.Provider,
			r.Record.Format,
			duration,
			r.Record.LiveDate,
			strconv.Itoa(r.Likes) + liked,
		})
	}
	p.table([]string{"", "ID", "TITLE", "PROVIDER", "FORMAT", "MIN", "LIVE", "LIKES"}, rows)

	fmt.Fprintf(p.w, "\nShowing %d of %d", v.Visible, v.Total)
	if v.HasPendingChanges {
		fmt.Fprint(p.w, " (unsaved changes)")
	}
	fmt.Fprintln(p.w)
	printNotices(p.w, v.Notices)
	return nil
}

func printNotices(w io.Writer, notices []viewmodel.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
