package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withEngine opens the database and hands an engine service to fn.
func withEngine(fn func(*store.SQLiteStore, *engine.Service) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		return fn(s, engine.New(s, nil))
	})
}

// findExperiment resolves an experiment by id, falling back to name so
// commands stay usable without pasting UUIDs.
func findExperiment(ctx context.Context, s *store.SQLiteStore, ref string) (*store.Experiment, error) {
	exp, err := s.GetExperiment(ctx, ref)
	if err == nil {
		return exp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	exps, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range exps {
		if e.Name == ref {
			return e, nil
		}
	}

	return nil, fmt.Errorf("experiment '%s' not found", ref)
}
