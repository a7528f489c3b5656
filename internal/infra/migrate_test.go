package infra

import (
	"testing"
	"testing/fstest"

	"homecare/migrations"
)

func TestLoadMigrations_OrdersAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"0002_events.sql": {Data: []byte("CREATE TABLE b ();")},
		"0001_init.sql":   {Data: []byte("CREATE TABLE a ();")},
		"README.md":       {Data: []byte("docs")},
		"seed.sql":        {Data: []byte("INSERT ...")},
		"x_bad.sql":       {Data: []byte("nope")},
	}
	got, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	got, err := LoadMigrations(migrations.FS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) < 2 || got[0].Name != "0001_init.sql" || got[1].Name != "0002_visit_date_required.sql" {
		t.Fatalf("expected embedded 0001_init.sql then 0002_visit_date_required.sql, got %+v", got)
	}
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	l := NewLogger("production", "not-a-level")
	if l.GetLevel().String() != "info" {
		t.Fatalf("expected info, got %s", l.GetLevel())
	}
}
