// Package ui renders the HTML pages of the job server.
package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is one row of the job index.
type JobListItem struct {
	ID        string
	State     string
	Frame     string
	Backend   string
	Geometry  string
	Blocks    int
	Elapsed   time.Duration
	Verdict   string
	StartTime time.Time
	EndTime   *time.Time
	Error     string
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>blockhist jobs</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
.completed { color: #2a7a2a; }
.failed { color: #b00020; }
.running { color: #1f5fa8; }
</style>
</head>
<body>
<h1>Histogram jobs</h1>
`

const pageFoot = `</body>
</html>
`

// JobList renders the job index page.
func JobList(items []JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if len(items) == 0 {
			if _, err := io.WriteString(w, "<p>No jobs yet. POST a job to /api/v1/jobs.</p>\n"); err != nil {
				return err
			}
			_, err := io.WriteString(w, pageFoot)
			return err
		}

		if _, err := io.WriteString(w, "<table>\n<tr><th>Job</th><th>State</th><th>Frame</th><th>Backend</th><th>Geometry</th><th>Blocks</th><th>Dispatch</th><th>Check</th><th>Started</th></tr>\n"); err != nil {
			return err
		}
		for _, item := range items {
			if err := jobRow(item).Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</table>\n"); err != nil {
			return err
		}
		_, err := io.WriteString(w, pageFoot)
		return err
	})
}

func jobRow(item JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		elapsed := "-"
		if item.Elapsed > 0 {
			elapsed = item.Elapsed.Round(time.Microsecond).String()
		}
		check := item.Verdict
		if item.Error != "" {
			check = item.Error
		}
		_, err := fmt.Fprintf(w,
			"<tr><td><a href=\"/api/v1/jobs/%s/status\">%s</a></td><td class=\"%s\">%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			templ.EscapeString(item.ID),
			templ.EscapeString(shortID(item.ID)),
			templ.EscapeString(item.State),
			templ.EscapeString(item.State),
			templ.EscapeString(item.Frame),
			templ.EscapeString(item.Backend),
			templ.EscapeString(item.Geometry),
			item.Blocks,
			templ.EscapeString(elapsed),
			templ.EscapeString(check),
			item.StartTime.Format(time.RFC3339),
		)
		return err
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
