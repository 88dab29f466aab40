// ABOUTME: Status CLI commands
// ABOUTME: Reports sync watermarks, local record counts, and the recent job history
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hivematrix/codex/db"
)

// StatusCommand prints the sync state for every provider plus local record
// counts.
func StatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	states, err := db.GetAllSyncStates(database)
	if err != nil {
		return err
	}

	if len(states) == 0 {
		fmt.Println("No syncs recorded yet.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tTYPE\tSTATUS\tRUNS\tLAST SUCCESS\tERROR")
		for _, s := range states {
			lastSuccess := "never"
			if s.LastSuccessAt != nil {
				lastSuccess = s.LastSuccessAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				s.Provider, s.SyncType, s.Status, s.RunCounter, lastSuccess, s.ErrorMessage)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	counts := []struct {
		label string
		query string
	}{
		{"companies", "SELECT COUNT(*) FROM companies"},
		{"contacts", "SELECT COUNT(*) FROM contacts"},
		{"agents", "SELECT COUNT(*) FROM psa_agents"},
		{"tickets", "SELECT COUNT(*) FROM tickets"},
		{"assets", "SELECT COUNT(*) FROM assets"},
	}
	fmt.Println()
	for _, c := range counts {
		var n int64
		if err := database.QueryRow(c.query).Scan(&n); err != nil {
			return err
		}
		fmt.Printf("  %s: %d\n", c.label, n)
	}
	return nil
}

// JobsCommand lists recent sync jobs, newest first.
func JobsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of jobs to show")
	verbose := fs.Bool("verbose", false, "Include job output")
	_ = fs.Parse(args)

	jobs, err := db.ListRecentSyncJobs(database, *limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCRIPT\tPROVIDER\tSTATUS\tSTARTED\tDURATION")
	for _, j := range jobs {
		duration := "running"
		if j.CompletedAt != nil {
			duration = j.CompletedAt.Sub(j.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Script, j.Provider, j.Status,
			j.StartedAt.Format("2006-01-02 15:04:05"), duration)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *verbose {
		for _, j := range jobs {
			if j.Output == "" {
				continue
			}
			fmt.Printf("\n%s:\n%s\n", j.ID, j.Output)
		}
	}
	return nil
}
