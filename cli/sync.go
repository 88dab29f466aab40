// ABOUTME: Sync CLI commands
// ABOUTME: Runs one-off sync passes and the account number tools against a named provider
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/psa"
	"github.com/hivematrix/codex/rmm"
	"github.com/hivematrix/codex/scheduler"
	"github.com/hivematrix/codex/syncer"
)

// SyncCommand runs a single sync pass.
func SyncCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	providerName := fs.String("provider", "", "Provider to sync (default: configured PSA or RMM provider)")
	syncType := fs.String("type", "all", "What to sync: all, psa, rmm, companies, contacts, agents, tickets, assets")
	fullHistory := fs.Bool("full-history", false, "Fetch the entire ticket history instead of recent changes")
	// Operator-initiated syncs reconcile by default; scheduled runs alternate.
	forceReconcile := fs.Bool("force-reconcile", true, "Run a full reconciliation pass for tickets")
	_ = fs.Parse(args)

	ctx := context.Background()
	s := syncer.New(database, cfg)
	opts := syncer.TicketOptions{FullHistory: *fullHistory, ForceReconcile: *forceReconcile}

	switch *syncType {
	case "all":
		// Both families run with their configured defaults; a -provider
		// flag only makes sense with a single-family type.
		if err := runPSAPass(ctx, database, cfg, "", opts); err != nil {
			return err
		}
		return runRMMPass(ctx, database, cfg, "")

	case "psa":
		return runPSAPass(ctx, database, cfg, *providerName, opts)

	case "rmm", "assets":
		return runRMMPass(ctx, database, cfg, *providerName)

	case "companies", "contacts", "agents", "tickets":
		p, err := psaProvider(cfg, *providerName)
		if err != nil {
			return err
		}
		if err := p.Authenticate(ctx); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}

		var result *syncer.Result
		switch *syncType {
		case "companies":
			result, err = s.SyncCompanies(ctx, p)
		case "contacts":
			result, err = s.SyncContacts(ctx, p)
		case "agents":
			result, err = s.SyncAgents(ctx, p)
		case "tickets":
			result, err = s.SyncTickets(ctx, p, opts)
		}
		if err != nil {
			return err
		}
		printResult(result)
		return nil

	default:
		return fmt.Errorf("unknown sync type: %s", *syncType)
	}
}

// AssignAccountNumbersCommand gives vendor companies without an account
// number a fresh one.
func AssignAccountNumbersCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("assign-account-numbers", flag.ExitOnError)
	providerName := fs.String("provider", "", "PSA provider (default: configured)")
	_ = fs.Parse(args)

	p, err := psaProvider(cfg, *providerName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := p.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	result, err := syncer.New(database, cfg).AssignAccountNumbers(ctx, p)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// PushAccountNumbersCommand writes account numbers into RMM site variables.
func PushAccountNumbersCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("push-account-numbers", flag.ExitOnError)
	providerName := fs.String("provider", "", "RMM provider (default: configured)")
	_ = fs.Parse(args)

	r, err := rmmProvider(cfg, *providerName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := r.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	result, err := syncer.New(database, cfg).PushAccountNumbers(ctx, r)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// TestConnectionCommand probes a provider's API without writing anything.
func TestConnectionCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	providerName := fs.String("provider", "", "Provider to test (default: all configured)")
	_ = fs.Parse(args)

	ctx := context.Background()
	failed := false

	test := func(name, family string, probe func() error) {
		if err := probe(); err != nil {
			fmt.Printf("✗ %s (%s): %v\n", name, family, err)
			failed = true
			return
		}
		fmt.Printf("✓ %s (%s): connected\n", name, family)
	}

	psaNames := cfg.PSAEnabled
	rmmNames := cfg.RMMEnabled
	if *providerName != "" {
		psaNames, rmmNames = nil, nil
		if _, err := psa.New(*providerName, cfg); err == nil {
			psaNames = []string{*providerName}
		} else if _, err := rmm.New(*providerName, cfg); err == nil {
			rmmNames = []string{*providerName}
		} else {
			return fmt.Errorf("unknown provider: %s", *providerName)
		}
	}

	for _, name := range psaNames {
		p, err := psa.New(name, cfg)
		if err != nil {
			return err
		}
		test(name, "psa", func() error {
			res := p.TestConnection(ctx)
			if !res.Success {
				return fmt.Errorf("%s", res.Message)
			}
			return nil
		})
	}
	for _, name := range rmmNames {
		r, err := rmm.New(name, cfg)
		if err != nil {
			return err
		}
		test(name, "rmm", func() error {
			res := r.TestConnection(ctx)
			if !res.Success {
				return fmt.Errorf("%s", res.Message)
			}
			return nil
		})
	}

	if failed {
		return fmt.Errorf("one or more connection tests failed")
	}
	return nil
}

// DaemonCommand runs the interval scheduler until interrupted.
func DaemonCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	_ = fs.Parse(args)

	return scheduler.New(database, cfg).Run(context.Background())
}

func psaProvider(cfg *config.Config, name string) (psa.Provider, error) {
	if name == "" {
		name = cfg.PSAProvider
	}
	return psa.New(name, cfg)
}

func rmmProvider(cfg *config.Config, name string) (rmm.Provider, error) {
	if name == "" {
		name = cfg.RMMProvider
	}
	return rmm.New(name, cfg)
}

func runPSAPass(ctx context.Context, database *sql.DB, cfg *config.Config, name string, opts syncer.TicketOptions) error {
	p, err := psaProvider(cfg, name)
	if err != nil {
		return err
	}
	job, err := scheduler.New(database, cfg).RunPSAProvider(ctx, p, opts)
	if err != nil {
		return err
	}
	printJob(database, job.ID)
	return nil
}

func runRMMPass(ctx context.Context, database *sql.DB, cfg *config.Config, name string) error {
	r, err := rmmProvider(cfg, name)
	if err != nil {
		return err
	}
	job, err := scheduler.New(database, cfg).RunRMMProvider(ctx, r)
	if err != nil {
		return err
	}
	printJob(database, job.ID)
	return nil
}

// printJob shows a completed job's stored output.
func printJob(database *sql.DB, id string) {
	job, err := db.GetSyncJob(database, id)
	if err != nil || job == nil {
		fmt.Printf("Job %s completed\n", id)
		return
	}
	fmt.Printf("Job %s %s:\n%s\n", job.ID, job.Status, job.Output)
}

func printResult(r *syncer.Result) {
	fmt.Println(r.Summary())
	for _, e := range r.Errors {
		fmt.Println("  error:", e)
	}
}
