package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_appliesEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"snapshots", "alarms"} {
		var n int
		if err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing after Run", table)
		}
	}

	var versions []string
	if err := db.Select(&versions, `SELECT version FROM schema_migrations ORDER BY version`); err != nil {
		t.Fatalf("select versions: %v", err)
	}
	if len(versions) != 2 || versions[0] != "0001" || versions[1] != "0002" {
		t.Errorf("versions = %v, want [0001 0002]", versions)
	}
}

func TestRun_idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Run(ctx, db); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM schema_migrations`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}
}

func TestRunFS_failedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"sql/0001_ok.sql":     {Data: []byte("CREATE TABLE a (id TEXT);")},
		"sql/0002_broken.sql": {Data: []byte("CREATE TABLE b (id TEXT); CREATE TABLEX nope;")},
		"sql/readme.txt":      {Data: []byte("ignored")},
	}

	if err := runFS(context.Background(), db, fsys, "sql"); err == nil {
		t.Fatal("runFS() = nil, want error for broken migration")
	}

	var versions []string
	if err := db.Select(&versions, `SELECT version FROM schema_migrations`); err != nil {
		t.Fatalf("select versions: %v", err)
	}
	if len(versions) != 1 || versions[0] != "0001" {
		t.Errorf("versions = %v, want [0001]", versions)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'b'`); err != nil {
		t.Fatalf("lookup b: %v", err)
	}
	if n != 0 {
		t.Error("table b exists; broken migration was not rolled back")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_snapshots.sql", "0001", "snapshots", true},
		{"0012_add_index.sql", "0012", "add_index", true},
		{"1_short.sql", "", "", false},
		{"0001_name.txt", "", "", false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v)", tt.in, v, n, ok)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id TEXT);\n\n CREATE INDEX i ON a(id) ;\n")
	if len(got) != 2 || got[1] != "CREATE INDEX i ON a(id)" {
		t.Errorf("splitStatements = %q", got)
	}
}
