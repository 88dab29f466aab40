// ABOUTME: Database connection management and initialization
// ABOUTME: Handles opening SQLite database with WAL mode and schema setup
package db

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func OpenDatabase(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Open database with WAL mode
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// Configure connection pool for SQLite (avoid database locked errors)
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// marshalJSON renders v as a JSON string for TEXT columns, with "" for
// empty collections so the column stays readable in the sqlite shell.
func marshalJSON(v any) string {
	switch t := v.(type) {
	case []int64:
		if len(t) == 0 {
			return "[]"
		}
	case []string:
		if len(t) == 0 {
			return "[]"
		}
	case map[string]string:
		if len(t) == 0 {
			return "{}"
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalInt64s(data string) []int64 {
	if data == "" {
		return nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}

func unmarshalStrings(data string) []string {
	if data == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}

func unmarshalStringMap(data string) map[string]string {
	if data == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}
