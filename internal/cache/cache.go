// SPDX-License-Identifier: MIT
package cache

import (
	"database/sql"
	"errors"
	"os"
	"time"

	applog "beatsync/internal/log"
)

// Entry is the stored result of analysing one file.
type Entry struct {
	Path       string
	ModTime    int64
	BPM        uint32
	Beats      uint64
	Duration   float64
	ConfigHash string // identifies the detector settings
	AnalyzedAt time.Time
}

// Cache stores and retrieves analysis results keyed by path, modification
// time and detector settings.
type Cache struct {
	db *sql.DB
}

// Get returns the entry for path if it was stored for the same modification
// time and config hash. A file modified since analysis, or analysed with other
// settings, is a miss.
func (c *Cache) Get(path string, modTime int64, configHash string) (Entry, bool) {
	e := Entry{Path: path, ModTime: modTime, ConfigHash: configHash}
	var analyzedAt any
	err := c.db.QueryRow(
		`SELECT bpm, beats, duration, analyzed_at FROM track_bpm WHERE path = ? AND mod_time = ? AND config_hash = ?`,
		path, modTime, configHash,
	).Scan(&e.BPM, &e.Beats, &e.Duration, &analyzedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			applog.Warnf("Cache: lookup %s failed: %v", path, err)
		}
		return Entry{}, false
	}
	e.AnalyzedAt = timestamp(analyzedAt)
	return e, true
}

// timestamp accepts both the driver's time.Time and SQLite's text form.
func timestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		ts, _ := time.Parse(time.DateTime, t)
		return ts
	case []byte:
		ts, _ := time.Parse(time.DateTime, string(t))
		return ts
	}
	return time.Time{}
}

// Set stores e, replacing any previous entry for e.Path.
func (c *Cache) Set(e Entry) error {
	_, err := c.db.Exec(
		`INSERT INTO track_bpm (path, mod_time, bpm, beats, duration, config_hash) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time, bpm = excluded.bpm,
		   beats = excluded.beats, duration = excluded.duration, config_hash = excluded.config_hash,
		   analyzed_at = CURRENT_TIMESTAMP`,
		e.Path, e.ModTime, e.BPM, e.Beats, e.Duration, e.ConfigHash,
	)
	return err
}

// Len is the number of stored entries.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM track_bpm`).Scan(&n)
	return n, err
}

// Cleanup removes entries whose files no longer exist and returns how many
// were removed.
func (c *Cache) Cleanup() (int, error) {
	rows, err := c.db.Query(`SELECT path FROM track_bpm`)
	if err != nil {
		return 0, err
	}

	var toDelete []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			toDelete = append(toDelete, path)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range toDelete {
		if _, err := c.db.Exec(`DELETE FROM track_bpm WHERE path = ?`, path); err != nil {
			applog.Warnf("Cache: delete %s failed: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		applog.Infof("Cache: Removed %d stale entries", removed)
	}
	return removed, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
