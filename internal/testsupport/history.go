package testsupport

import (
	"testing"

	"hopper/internal/config"
	"hopper/internal/history"
)

// MustOpenHistory opens the config's history journal and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
