package database

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_holdings.up.sql":  {Data: []byte("CREATE TABLE holdings ();")},
		"001_quotes.up.sql":    {Data: []byte("CREATE TABLE quotes ();")},
		"001_quotes.down.sql":  {Data: []byte("DROP TABLE quotes;")},
		"003_snapshots.up.sql": {Data: []byte("CREATE TABLE portfolio_snapshots ();")},
		"README.md":            {Data: []byte("notes")},
		"nested/004_x.up.sql":  {Data: []byte("SELECT 1;")},
	}

	got, err := PendingMigrations(fsys, map[string]bool{"002_holdings.up.sql": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"001_quotes.up.sql", "003_snapshots.up.sql"}
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
