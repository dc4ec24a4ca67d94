package seed

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	storagesqlite "github.com/openconf/openconf/internal/services/conference/storage/sqlite"
)

func TestRunRequiresDBPath(t *testing.T) {
	t.Parallel()

	if err := Run(context.Background(), nil, Config{}); err == nil {
		t.Fatal("expected error when db path is empty")
	}
}

func TestRunSeedsDemoData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.db")
	out := &bytes.Buffer{}
	if err := Run(context.Background(), out, Config{DBPath: path, Verbose: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out.String(), "seed complete") {
		t.Fatalf("expected completion log, got %q", out.String())
	}

	store, err := storagesqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	users, err := store.ListUsersWithRoles(context.Background())
	if err != nil {
		t.Fatalf("list users with roles: %v", err)
	}
	if len(users) == 0 {
		t.Fatal("expected seeded users holding roles")
	}
}
