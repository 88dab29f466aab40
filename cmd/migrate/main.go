// ABOUTME: Database maintenance utility for the codex sync database
// ABOUTME: Applies the current schema with optional backup and integrity check
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hivematrix/codex/db"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "", "Path to database file (required)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	check := flag.Bool("check", true, "Run an integrity check after migration")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}

	if err := migrate(*dbPath, *dryRun, *backup, *check); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dbPath string, dryRun, createBackup, check bool) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	if dryRun {
		log.Println("Dry run: would apply the current schema to", dbPath)
		return nil
	}

	if createBackup {
		backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
		log.Printf("Creating backup: %s", backupPath)

		input, err := os.ReadFile(dbPath)
		if err != nil {
			return fmt.Errorf("failed to read database: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0o644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()
	database.SetMaxOpenConns(1)

	// The schema only ever adds; CREATE IF NOT EXISTS makes this a no-op
	// on an up-to-date database.
	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("Schema applied")

	if check {
		var result string
		if err := database.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check failed to run: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check reported: %s", result)
		}
		log.Println("Integrity check passed")
	}

	return nil
}
