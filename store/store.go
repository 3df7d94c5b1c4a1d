// Package store persists tracker runs and their finished tracks to SQLite
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swdee/go-ioutracker/tracker"

	_ "modernc.org/sqlite"
)

// schema.sql creates the runs, tracks and track_boxes tables
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run ID does not exist
var ErrRunNotFound = errors.New("run not found")

// Store is a SQLite database of tracker runs
type Store struct {
	db *sql.DB
}

// Run describes a single tracker invocation
type Run struct {
	RunID     string
	Source    string
	Config    tracker.Config
	CreatedAt time.Time
}

// TrackRecord is a track as read back from the database
type TrackRecord struct {
	RunID      string
	TrackID    int
	State      string
	StartTime  float64
	LastTime   float64
	StartFrame int
	LastFrame  int
	Boxes      []tracker.BoundingBox
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*Store, error) {

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// pragmas are per connection so keep a single one
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new run of the tracker over source with cfg and returns
// its generated run ID
func (s *Store) StartRun(source string, cfg tracker.Config) (string, error) {

	cfgJSON, err := json.Marshal(cfg)

	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	runID := uuid.New().String()

	_, err = s.db.Exec(`INSERT INTO runs (run_id, source, config_json, created_at)
		VALUES (?, ?, ?, ?)`, runID, source, string(cfgJSON), time.Now().UnixNano())

	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	return runID, nil
}

// Run returns the run with the given ID
func (s *Store) Run(runID string) (*Run, error) {

	var (
		r         Run
		cfgJSON   string
		createdAt int64
	)

	err := s.db.QueryRow(`SELECT run_id, source, config_json, created_at
		FROM runs WHERE run_id = ?`, runID).Scan(&r.RunID, &r.Source, &cfgJSON, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Config = tracker.DefaultConfig()

	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of run %s: %w", runID, err)
	}

	r.CreatedAt = time.Unix(0, createdAt)

	return &r, nil
}

// SaveTrack writes a track and its box history under runID.  Saving the same
// track again replaces the stored copy
func (s *Store) SaveTrack(runID string, t *tracker.Track) error {

	tx, err := s.db.Begin()

	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tracks WHERE run_id = ? AND track_id = ?`,
		runID, t.GetTrackID()); err != nil {
		return fmt.Errorf("delete track %d: %w", t.GetTrackID(), err)
	}

	_, err = tx.Exec(`INSERT INTO tracks (run_id, track_id, state, start_time,
			last_time, start_frame, last_frame, length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.GetTrackID(), t.GetState().String(), t.GetStartTime(),
		t.GetLastTime(), t.GetStartFrame(), t.GetLastFrame(), t.Len())

	if err != nil {
		return fmt.Errorf("insert track %d: %w", t.GetTrackID(), err)
	}

	stmt, err := tx.Prepare(`INSERT INTO track_boxes (run_id, track_id, seq, x0, y0, x1, y1)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	if err != nil {
		return fmt.Errorf("prepare box insert: %w", err)
	}

	defer stmt.Close()

	for seq, b := range t.BoundingBoxes() {
		if _, err := stmt.Exec(runID, t.GetTrackID(), seq, b.X0, b.Y0, b.X1, b.Y1); err != nil {
			return fmt.Errorf("insert box %d of track %d: %w", seq, t.GetTrackID(), err)
		}
	}

	return tx.Commit()
}

// SaveTracks writes every track in a single call
func (s *Store) SaveTracks(runID string, tracks []*tracker.Track) error {

	for _, t := range tracks {
		if err := s.SaveTrack(runID, t); err != nil {
			return err
		}
	}

	return nil
}

// Tracks returns the tracks saved under runID ordered by track ID
func (s *Store) Tracks(runID string) ([]*TrackRecord, error) {

	rows, err := s.db.Query(`SELECT run_id, track_id, state, start_time, last_time,
			start_frame, last_frame
		FROM tracks WHERE run_id = ? ORDER BY track_id`, runID)

	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}

	var records []*TrackRecord
	byID := make(map[int]*TrackRecord)

	for rows.Next() {
		var r TrackRecord

		if err := rows.Scan(&r.RunID, &r.TrackID, &r.State, &r.StartTime,
			&r.LastTime, &r.StartFrame, &r.LastFrame); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan track: %w", err)
		}

		records = append(records, &r)
		byID[r.TrackID] = &r
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	// read all boxes in one query, the connection is not shared between two
	// open result sets
	boxRows, err := s.db.Query(`SELECT track_id, x0, y0, x1, y1
		FROM track_boxes WHERE run_id = ? ORDER BY track_id, seq`, runID)

	if err != nil {
		return nil, fmt.Errorf("query boxes: %w", err)
	}

	defer boxRows.Close()

	for boxRows.Next() {
		var (
			id int
			b  tracker.BoundingBox
		)

		if err := boxRows.Scan(&id, &b.X0, &b.Y0, &b.X1, &b.Y1); err != nil {
			return nil, fmt.Errorf("scan box: %w", err)
		}

		if r, ok := byID[id]; ok {
			r.Boxes = append(r.Boxes, b)
		}
	}

	return records, boxRows.Err()
}
