// SPDX-License-Identifier: MIT

// Package cache persists offline analysis results in SQLite so unchanged
// files are not decoded twice.
package cache

import (
	"database/sql"
	"fmt"

	applog "beatsync/internal/log"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS track_bpm (
	path        TEXT PRIMARY KEY,   -- absolute file path
	mod_time    INTEGER NOT NULL,   -- file modification time (Unix nanoseconds)
	bpm         INTEGER NOT NULL,
	beats       INTEGER NOT NULL,
	duration    REAL NOT NULL,      -- seconds of audio analysed
	config_hash TEXT NOT NULL DEFAULT '', -- detector settings the result was computed with
	analyzed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// Columns added after the first schema, applied to older databases in order.
var migrations = []struct {
	column string
	ddl    string
}{
	{"config_hash", `ALTER TABLE track_bpm ADD COLUMN config_hash TEXT NOT NULL DEFAULT ''`},
}

// Open opens or creates the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	// database/sql pools connections; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			applog.Warnf("Cache: %s failed: %v", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache schema: %w", err)
	}

	applog.Debugf("Cache: Opened %s", path)
	return &Cache{db: db}, nil
}

// migrate creates the schema and adds any columns an older database lacks.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	rows, err := db.Query(`PRAGMA table_info(track_bpm)`)
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if have[m.column] {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
		applog.Infof("Cache: Added column %s", m.column)
	}
	return nil
}
