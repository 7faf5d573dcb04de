package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opweave/opweave/internal/ir"
)

// Run is one generation pass over a graph document.
type Run struct {
	ID               string
	CreatedAt        time.Time
	GraphFingerprint string
}

// CreateRun mints and persists a new run for the given graph fingerprint.
func (s *Store) CreateRun(ctx context.Context, fingerprint string) (Run, error) {
	run := Run{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		GraphFingerprint: fingerprint,
	}
	if err := s.WriteRun(ctx, run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// WriteRun inserts a run record. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, graph_fingerprint)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.GraphFingerprint,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteCollection persists one endpoint's scenario collection under a run.
// Re-writing the same (run, endpoint) pair is silently ignored, so a
// crashed and restarted generation pass never duplicates rows.
func (s *Store) WriteCollection(ctx context.Context, runID, fingerprint string, c *ir.ScenarioCollection) error {
	document, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("write collection: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections
		(run_id, endpoint, graph_fingerprint, unsatisfied, truncated, scenario_count, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, endpoint) DO NOTHING
	`,
		runID,
		c.Endpoint,
		fingerprint,
		boolToInt(c.Unsatisfied),
		boolToInt(c.Truncated),
		len(c.Scenarios),
		string(document),
	)
	if err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
