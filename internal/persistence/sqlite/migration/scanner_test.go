package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScanOrdersByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"010_add_index.sql":    {Data: []byte("CREATE INDEX idx ON t(id);")},
		"002_create_table.sql": {Data: []byte("-- table\nCREATE TABLE t (id TEXT);")},
		"README.md":            {Data: []byte("ignored")},
	}

	migrations, err := Scan(fsys)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 2 || migrations[1].Version != 10 {
		t.Fatalf("unexpected order: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Description != "create table" {
		t.Fatalf("unexpected description %q", migrations[0].Description)
	}
	if len(migrations[0].Checksum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", migrations[0].Checksum)
	}
}

func TestScanRejectsBadFiles(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fsys fstest.MapFS
		want error
	}{
		"bad name": {
			fsys: fstest.MapFS{"create.sql": {Data: []byte("SELECT 1;")}},
			want: ErrInvalidMigrationFile,
		},
		"zero version": {
			fsys: fstest.MapFS{"000_init.sql": {Data: []byte("SELECT 1;")}},
			want: ErrInvalidMigrationFile,
		},
		"comments only": {
			fsys: fstest.MapFS{"001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
		"duplicate version": {
			fsys: fstest.MapFS{
				"001_a.sql": {Data: []byte("SELECT 1;")},
				"01_b.sql":  {Data: []byte("SELECT 2;")},
			},
			want: ErrDuplicateVersion,
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Scan(tc.fsys)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var mErr *MigrationError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected *MigrationError, got %T", err)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	content := "-- header\nCREATE TABLE a (id TEXT);\n\n-- second\nCREATE TABLE b (id TEXT);\n"
	statements := splitStatements(content)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE TABLE b (id TEXT)" {
		t.Fatalf("unexpected statement %q", statements[1])
	}
}
