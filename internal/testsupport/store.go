package testsupport

import (
	"testing"

	"b2pc/internal/config"
	"b2pc/internal/history"
)

// MustOpenStore opens the history database for cfg and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
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
