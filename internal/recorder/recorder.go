// Package recorder persists session and stream statistics to SQLite, so
// capture health can be inspected after the fact.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/eventcam/internal/acquire"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			device_name       TEXT,
			serial            TEXT,
			logic_version     BIGINT,
			started           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS stream_stats (
			session_id        TEXT,
			containers        BIGINT,
			dropped           BIGINT,
			transfer_errors   BIGINT,
			malformed_records BIGINT,
			abandoned_frames  BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordSession registers a capture session when it opens.
func (db *DB) RecordSession(sessionID, deviceName, serial string, logicVersion int32) error {
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, device_name, serial, logic_version) VALUES (?, ?, ?, ?)",
		sessionID, deviceName, serial, logicVersion)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// RecordStats appends one statistics snapshot for a session.
func (db *DB) RecordStats(sessionID string, s acquire.Stats) error {
	_, err := db.Exec(
		`INSERT INTO stream_stats
			(session_id, containers, dropped, transfer_errors, malformed_records, abandoned_frames)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, int64(s.Containers), int64(s.DroppedContainers),
		int64(s.TransferErrors), int64(s.MalformedRecords), int64(s.AbandonedFrames))
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// StatsRow is one persisted snapshot. Timestamp keeps SQLite's own
// formatting.
type StatsRow struct {
	SessionID string
	Stats     acquire.Stats
	Timestamp string
}

// RecentStats returns the newest snapshots for a session, newest first.
func (db *DB) RecentStats(sessionID string, limit int) ([]StatsRow, error) {
	rows, err := db.Query(
		`SELECT session_id, containers, dropped, transfer_errors, malformed_records, abandoned_frames, timestamp
		FROM stream_stats WHERE session_id = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		var containers, dropped, transferErrs, malformed, abandoned int64
		if err := rows.Scan(&r.SessionID, &containers, &dropped, &transferErrs,
			&malformed, &abandoned, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		r.Stats = acquire.Stats{
			Containers:        uint64(containers),
			DroppedContainers: uint64(dropped),
			TransferErrors:    uint64(transferErrs),
			MalformedRecords:  uint64(malformed),
			AbandonedFrames:   uint64(abandoned),
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Statser is anything with live stream counters; device sessions qualify.
type Statser interface {
	Statistics() acquire.Stats
}

// LogPeriodically snapshots src into the database every interval until ctx
// is cancelled. Write failures are logged, not fatal.
func (db *DB) LogPeriodically(ctx context.Context, sessionID string, src Statser, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.RecordStats(sessionID, src.Statistics()); err != nil {
				log.Printf("recorder: %v", err)
			}
		}
	}
}
