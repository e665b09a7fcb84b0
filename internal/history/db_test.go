package history

import (
	"os"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tables := []string{"schema_version", "compile_runs", "build_runs"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var count int
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if count != LatestVersion {
		t.Errorf("expected %d schema version rows, got %d", LatestVersion, count)
	}
}

func TestMigrate_UpgradesOlderSchema(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	// A database last written by a v1 binary.
	if _, err := d.conn.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT (datetime('now')))`); err != nil {
		t.Fatal(err)
	}
	if err := d.apply(1); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if _, err := d.conn.Exec(`INSERT INTO compile_runs (config_path, outcome) VALUES ('old.json', 'ok')`); err != nil {
		t.Fatal(err)
	}

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, err := d.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != LatestVersion || LatestVersion < 2 {
		t.Errorf("SchemaVersion() = %d, want %d (>= 2)", v, LatestVersion)
	}

	if _, err := d.RecordCompile(CompileRun{ConfigPath: "new.json", Outcome: "ok", Params: map[string]string{"n": "20"}}); err != nil {
		t.Fatalf("RecordCompile after upgrade: %v", err)
	}
	runs, err := d.ListCompiles(0)
	if err != nil {
		t.Fatalf("ListCompiles: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Params["n"] != "20" {
		t.Errorf("params not kept: %+v", runs[0])
	}
	if runs[1].ConfigPath != "old.json" || runs[1].Params != nil {
		t.Errorf("pre-upgrade row changed: %+v", runs[1])
	}
}

func TestSchemaVersion_NewDatabase(t *testing.T) {
	d := testDB(t)
	v, err := d.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != LatestVersion {
		t.Errorf("SchemaVersion() = %d, want %d", v, LatestVersion)
	}
}

func TestDefaultDBPath_Env(t *testing.T) {
	want := filepath.Join(t.TempDir(), "nested", "h.db")
	t.Setenv(EnvDBPath, want)
	got, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if got != want {
		t.Errorf("DefaultDBPath() = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Dir(want)); err != nil {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func TestRecordAndListCompiles(t *testing.T) {
	d := testDB(t)

	runs := []CompileRun{
		{ConfigPath: "pipeline.json", OutputPath: "Makefile", Fingerprint: "aaa", Outcome: "ok", Stages: 2, Rules: 2, DurationMs: 3},
		{ConfigPath: "pipeline.json", Outcome: "cycle", Error: "dependency cycle: a -> b -> a"},
		{ConfigPath: "other.yaml", OutputPath: "build.mk", Fingerprint: "bbb", Outcome: "ok", Stages: 1, Rules: 1},
	}
	for _, r := range runs {
		if _, err := d.RecordCompile(r); err != nil {
			t.Fatalf("RecordCompile: %v", err)
		}
	}

	got, err := d.ListCompiles(0)
	if err != nil {
		t.Fatalf("ListCompiles: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(got))
	}
	if got[0].ConfigPath != "other.yaml" {
		t.Errorf("expected newest first, got %q", got[0].ConfigPath)
	}
	if got[1].Error != "dependency cycle: a -> b -> a" || got[1].OutputPath != "" {
		t.Errorf("unexpected failed run: %+v", got[1])
	}
	if got[2].Stages != 2 || got[2].DurationMs != 3 || got[2].Timestamp == "" {
		t.Errorf("unexpected first run: %+v", got[2])
	}

	limited, err := d.ListCompiles(2)
	if err != nil {
		t.Fatalf("ListCompiles(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}
}

func TestRecordCompile_RejectsUnknownOutcome(t *testing.T) {
	d := testDB(t)
	if _, err := d.RecordCompile(CompileRun{ConfigPath: "p.json", Outcome: "bogus"}); err == nil {
		t.Fatal("expected constraint error")
	}
}

func TestLastCompile(t *testing.T) {
	d := testDB(t)

	last, err := d.LastCompile("pipeline.json")
	if err != nil {
		t.Fatalf("LastCompile: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil, got %+v", last)
	}

	d.RecordCompile(CompileRun{ConfigPath: "pipeline.json", Fingerprint: "old", Outcome: "ok"})
	d.RecordCompile(CompileRun{ConfigPath: "pipeline.json", Fingerprint: "new", Outcome: "ok"})
	d.RecordCompile(CompileRun{ConfigPath: "pipeline.json", Outcome: "validation"})

	last, err = d.LastCompile("pipeline.json")
	if err != nil {
		t.Fatalf("LastCompile: %v", err)
	}
	if last == nil || last.Fingerprint != "new" {
		t.Errorf("expected latest successful run, got %+v", last)
	}
}

func TestRecordAndListBuilds(t *testing.T) {
	d := testDB(t)

	compileID, err := d.RecordCompile(CompileRun{ConfigPath: "pipeline.json", Outcome: "ok"})
	if err != nil {
		t.Fatalf("RecordCompile: %v", err)
	}
	if _, err := d.RecordBuild(BuildRun{CompileID: &compileID, Makefile: "Makefile", Command: "make -f Makefile", Passed: true, DurationMs: 40, Summary: "passed (exit code 0)"}); err != nil {
		t.Fatalf("RecordBuild: %v", err)
	}
	if _, err := d.RecordBuild(BuildRun{Makefile: "Makefile", Command: "make -f Makefile -n", Passed: true, UpToDate: true}); err != nil {
		t.Fatalf("RecordBuild: %v", err)
	}

	builds, err := d.ListBuilds(10)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(builds))
	}
	if builds[0].CompileID != nil || !builds[0].UpToDate {
		t.Errorf("unexpected newest build: %+v", builds[0])
	}
	if builds[1].CompileID == nil || *builds[1].CompileID != compileID {
		t.Errorf("expected compile_id %d, got %v", compileID, builds[1].CompileID)
	}
	if builds[1].Summary != "passed (exit code 0)" || builds[1].DurationMs != 40 {
		t.Errorf("unexpected build: %+v", builds[1])
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)

	if _, err := d.RecordCompile(CompileRun{ConfigPath: "pipeline.json", Outcome: "ok"}); err != nil {
		t.Fatalf("RecordCompile: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	runs, err := d.ListCompiles(0)
	if err != nil {
		t.Fatalf("ListCompiles after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs after reset, got %d", len(runs))
	}
}
