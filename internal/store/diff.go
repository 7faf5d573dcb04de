package store

import (
	"context"
	"fmt"
	"sort"
)

// RunDiff summarizes how one run's output differs from another's, endpoint
// by endpoint. Changed compares the stored documents byte for byte, which
// is sound because collection serialization is deterministic.
type RunDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Empty reports whether the two runs produced identical output.
func (d RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffRuns compares the collections of two runs. Added and Removed name
// endpoints present in only one run; Changed names endpoints whose
// documents differ.
func (s *Store) DiffRuns(ctx context.Context, oldRunID, newRunID string) (RunDiff, error) {
	if _, err := s.GetRun(ctx, oldRunID); err != nil {
		return RunDiff{}, err
	}
	if _, err := s.GetRun(ctx, newRunID); err != nil {
		return RunDiff{}, err
	}

	oldDocs, err := s.collectionDocuments(ctx, oldRunID)
	if err != nil {
		return RunDiff{}, err
	}
	newDocs, err := s.collectionDocuments(ctx, newRunID)
	if err != nil {
		return RunDiff{}, err
	}

	var diff RunDiff
	for endpoint, doc := range newDocs {
		old, ok := oldDocs[endpoint]
		switch {
		case !ok:
			diff.Added = append(diff.Added, endpoint)
		case old != doc:
			diff.Changed = append(diff.Changed, endpoint)
		}
	}
	for endpoint := range oldDocs {
		if _, ok := newDocs[endpoint]; !ok {
			diff.Removed = append(diff.Removed, endpoint)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff, nil
}

func (s *Store) collectionDocuments(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, document FROM collections WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("diff runs: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]string)
	for rows.Next() {
		var endpoint, document string
		if err := rows.Scan(&endpoint, &document); err != nil {
			return nil, fmt.Errorf("diff runs: %w", err)
		}
		docs[endpoint] = document
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("diff runs: %w", err)
	}
	return docs, nil
}
