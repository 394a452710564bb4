package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"veribatch/internal/api"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var titleCaser = cases.Title(language.English)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// outcomeLabel renders an outcome for humans, colorized when the writer is a
// terminal.
func outcomeLabel(outcome string, colorize bool) string {
	label := titleCaser.String(outcome)
	if !colorize {
		return label
	}
	switch outcome {
	case "success":
		return ansiGreen + label + ansiReset
	case "failure":
		return ansiRed + label + ansiReset
	case "cancelled", "pending":
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func writeJob(w io.Writer, snap api.JobSnapshot) {
	colorize := shouldColorize(w)

	fmt.Fprintf(w, "Job:       %s\n", snap.JobID)
	fmt.Fprintf(w, "Requester: %s\n", snap.Requester)
	fmt.Fprintf(w, "State:     %s\n", titleCaser.String(snap.State))
	if snap.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", snap.Error)
	}
	fmt.Fprintf(w, "Created:   %s\n", formatTimestamp(snap.CreatedAt))
	if snap.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:  %s\n", formatTimestamp(*snap.FinishedAt))
	}

	rows := make([][]string, 0, len(snap.Results))
	for _, res := range snap.Results {
		rows = append(rows, []string{res.ID, outcomeLabel(res.Outcome, colorize), res.Message})
	}
	fmt.Fprintln(w, renderTable([]string{"Identifier", "Outcome", "Message"}, rows))
}

func writeJobList(w io.Writer, jobs []api.JobSnapshot) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs retained")
		return
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.JobID,
			job.Requester,
			titleCaser.String(job.State),
			strconv.Itoa(len(job.Results)),
			formatTimestamp(job.CreatedAt),
		})
	}
	fmt.Fprintln(w, renderTable([]string{"Job", "Requester", "State", "IDs", "Created"}, rows, 4))
}

func writeStats(w io.Writer, stats api.StatsResponse) {
	if stats.Requester != "" {
		fmt.Fprintf(w, "Requester: %s\n", stats.Requester)
	} else {
		fmt.Fprintf(w, "Requesters: %d\n", stats.Requesters)
	}
	fmt.Fprintf(w, "Submissions:      %d (%d in last 24h)\n", stats.Submissions, stats.SubmissionsInDay)
	fmt.Fprintf(w, "Identifiers:      %d\n", stats.Identifiers)

	if len(stats.Outcomes) > 0 {
		outcomes := make([]string, 0, len(stats.Outcomes))
		for outcome := range stats.Outcomes {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)
		rows := make([][]string, 0, len(outcomes))
		for _, outcome := range outcomes {
			rows = append(rows, []string{titleCaser.String(outcome), strconv.Itoa(stats.Outcomes[outcome])})
		}
		fmt.Fprintln(w, renderTable([]string{"Outcome", "Count"}, rows, 2))
	}

	if len(stats.TopRequesters) > 0 {
		rows := make([][]string, 0, len(stats.TopRequesters))
		for _, top := range stats.TopRequesters {
			rows = append(rows, []string{top.Requester, strconv.Itoa(top.Submissions)})
		}
		fmt.Fprintln(w, renderTable([]string{"Requester", "Submissions (24h)"}, rows, 2))
	}
}
