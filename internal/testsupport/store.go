package testsupport

import (
	"context"
	"testing"

	"resave/internal/config"
	"resave/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewJob creates a transfer job with the given number of generated share
// links for tests using the provided store.
func NewJob(t testing.TB, st *store.Store, name string, itemCount int) *store.TransferJob {
	t.Helper()

	seeds := make([]store.ItemSeed, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		seeds = append(seeds, store.ItemSeed{
			SourceRef: ShareURL(i),
			Title:     name,
		})
	}
	job, err := st.CreateJob(context.Background(), name, 0, 0, seeds)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
