package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opweave/opweave/internal/ir"
)

// ErrNotFound is returned when a requested run or collection does not
// exist.
var ErrNotFound = errors.New("not found")

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, graph_fingerprint
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &createdAt, &run.GraphFingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("get run: parse created_at: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, graph_fingerprint
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.GraphFingerprint); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("list runs: parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetCollection loads one endpoint's scenario collection from a run.
func (s *Store) GetCollection(ctx context.Context, runID, endpoint string) (*ir.ScenarioCollection, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM collections
		WHERE run_id = ? AND endpoint = ?
	`, runID, endpoint).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q in run %q: %w", endpoint, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	c := &ir.ScenarioCollection{}
	if err := json.Unmarshal([]byte(document), c); err != nil {
		return nil, fmt.Errorf("get collection: decode document: %w", err)
	}
	return c, nil
}

// ListEndpoints returns the endpoints a run has collections for, sorted.
func (s *Store) ListEndpoints(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint FROM collections
		WHERE run_id = ? ORDER BY endpoint
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []string
	for rows.Next() {
		var endpoint string
		if err := rows.Scan(&endpoint); err != nil {
			return nil, fmt.Errorf("list endpoints: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return endpoints, nil
}
