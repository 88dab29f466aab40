// ABOUTME: Entry point for the Codex sync engine
// ABOUTME: Routes to sync commands, account number tools, the daemon, and status reporting
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/cli"
	"github.com/hivematrix/codex/config"
	"github.com/hivematrix/codex/db"
)

const version = "0.2.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/codex/codex.db)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("codex version %s\n", version)
		os.Exit(0)
	}

	setupLogging(*logLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *initOnly {
		log.Infof("Database initialized at %s", cfg.DatabasePath)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "sync":
		if err := cli.SyncCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "daemon":
		if err := cli.DaemonCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "test-connection":
		if err := cli.TestConnectionCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "assign-account-numbers":
		if err := cli.AssignAccountNumbersCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "push-account-numbers":
		if err := cli.PushAccountNumbersCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "status":
		if err := cli.StatusCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "jobs":
		if err := cli.JobsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func printUsage() {
	fmt.Println(`codex - PSA/RMM synchronization engine

Usage:
  codex [flags] <command> [command flags]

Commands:
  sync                      Run a sync pass
    -provider <name>          Provider to sync (default: configured)
    -type <type>              all, psa, rmm, companies, contacts, agents, tickets, assets
    -full-history             Fetch the entire ticket history
    -force-reconcile          Run a ticket reconciliation pass (default: true)
  daemon                    Run scheduled syncs until interrupted
  test-connection           Probe provider APIs
    -provider <name>          Test one provider instead of all configured
  assign-account-numbers    Give vendor companies without an account number a fresh one
    -provider <name>          PSA provider (default: configured)
  push-account-numbers      Write account numbers into RMM site variables
    -provider <name>          RMM provider (default: configured)
  status                    Show sync state and local record counts
  jobs                      List recent sync jobs
    -limit <n>                Number of jobs to show (default: 20)
    -verbose                  Include job output

Flags:
  -version                  Show version and exit
  -db-path <path>           Database path (default: ~/.local/share/codex/codex.db)
  -log-level <level>        debug, info, warn, error (default: info)
  -init                     Initialize database and exit`)
}
