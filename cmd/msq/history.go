package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/msq-lang/msq/history"
	"github.com/msq-lang/msq/manifest"
	"github.com/msq-lang/msq/vm"
)

// cmdHistory handles `msq history`.
// Usage:
//
//	msq history                 # ten most recent runs
//	msq history list -n 50
//	msq history show <id>       # id may be a unique prefix
//	msq history delete <id>
func (c *cli) cmdHistory(args []string) int {
	action := "list"
	if len(args) > 0 && (args[0] == "list" || args[0] == "show" || args[0] == "delete") {
		action, args = args[0], args[1:]
	}

	fs, verbosity := c.newFlagSet("history " + action)
	limit := fs.Int("n", 10, "Number of runs to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if action != "list" && fs.NArg() != 1 {
		fmt.Fprintf(c.stderr, "usage: %s history %s <id>\n", appName, action)
		return 2
	}

	m := c.config(*verbosity)
	return c.history(m, action, fs.Arg(0), *limit)
}

func (c *cli) history(m *manifest.Manifest, action, id string, limit int) int {
	store, err := history.Open(m.HistoryPath())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	switch action {
	case "show":
		run, err := store.Get(ctx, id)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		c.showRun(run)
	case "delete":
		run, err := store.Get(ctx, id)
		if err == nil {
			err = store.Delete(ctx, run.ID)
		}
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(c.stdout, "Deleted %s\n", run.ID)
	default:
		runs, err := store.List(ctx, limit)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		c.listRuns(runs)
	}
	return 0
}

func (c *cli) listRuns(runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "No runs recorded")
		return
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tDURATION\tPATH")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.StartedAt.Format(time.DateTime), r.Status,
			r.Duration.Round(time.Microsecond), r.Path)
	}
	tw.Flush()
}

func (c *cli) showRun(r *history.Run) {
	fmt.Fprintf(c.stdout, "Run:         %s\n", r.ID)
	fmt.Fprintf(c.stdout, "Path:        %s\n", r.Path)
	fmt.Fprintf(c.stdout, "Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(c.stdout, "Started:     %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(c.stdout, "Duration:    %s\n", r.Duration)
	fmt.Fprintf(c.stdout, "Status:      %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(c.stdout, "Error:       %s\n", r.Error)
	}
	if r.HasValue {
		fmt.Fprintf(c.stdout, "Value:       %s\n", r.Value)
	}
	if len(r.Memory) > 0 {
		fmt.Fprintln(c.stdout)
		vm.WriteDump(c.stdout, r.Memory)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
