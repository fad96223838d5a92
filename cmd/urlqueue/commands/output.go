package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urlqueue/urlqueue/internal/bus"
	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/jobsync"
)

const maxDetail = 60

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printJobs writes jobs as a table, one row per job.
func printJobs(w io.Writer, jobs []job.Record) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tRETRIES\tURL\tDETAIL")
	for _, r := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.Retries, r.URL, detail(r))
	}
	return tw.Flush()
}

// printView writes the collection, or a note when it is empty.
func printView(w io.Writer, v jobsync.View) error {
	if v.Empty() {
		_, err := fmt.Fprintln(w, "no jobs")
		return err
	}
	if err := printJobs(w, v.Jobs); err != nil {
		return err
	}
	if v.HasMore() {
		_, err := fmt.Fprintf(w, "(more jobs after cursor %d, use --more)\n", v.Cursor)
		return err
	}
	return nil
}

// printJob writes every field of r.
func printJob(w io.Writer, r job.Record) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "id:\t%d\n", r.ID)
	fmt.Fprintf(tw, "url:\t%s\n", r.URL)
	fmt.Fprintf(tw, "status:\t%s\n", r.Status)
	if r.Preview != nil {
		if r.Preview.Title != "" {
			fmt.Fprintf(tw, "title:\t%s\n", r.Preview.Title)
		}
		if r.Preview.ThumbnailURL != "" {
			fmt.Fprintf(tw, "thumbnail:\t%s\n", r.Preview.ThumbnailURL)
		}
	}
	if r.File != "" {
		fmt.Fprintf(tw, "file:\t%s\n", r.File)
	}
	if r.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", r.Error)
	}
	fmt.Fprintf(tw, "retries:\t%d\n", r.Retries)
	fmt.Fprintf(tw, "created:\t%s\n", r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(tw, "updated:\t%s\n", r.UpdatedAt.Local().Format(time.DateTime))
	return tw.Flush()
}

func printEvent(w io.Writer, ev bus.Event) {
	line := fmt.Sprintf("%s  job %d  %s  %s", ev.At.Local().Format(time.TimeOnly), ev.JobID, ev.Status, ev.URL)
	switch {
	case ev.Error != "":
		line += "  " + firstLine(ev.Error)
	case ev.File != "":
		line += "  " + ev.File
	}
	fmt.Fprintln(w, line)
}

// detail is the most useful extra information for a job at its status.
func detail(r job.Record) string {
	var s string
	switch {
	case r.Error != "":
		s = firstLine(r.Error)
	case r.File != "":
		s = r.File
	case r.Preview != nil:
		s = r.Preview.Title
	}
	if len(s) > maxDetail {
		s = s[:maxDetail-3] + "..."
	}
	return s
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
