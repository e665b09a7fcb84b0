package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/pipeconfig/internal/history"
)

const sortPipeline = `{
  "targets": ["OUTPUT_SORTED"],
  "stages": {
    "RANDOM_NUMBERS": {"command": "cargo run --bin example"},
    "OUTPUT_SORTED": {"description": "sorted numbers", "dependencies": {"file1": "RANDOM_NUMBERS"}, "command": "cat $< | sort -n > $@"}
  }
}`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testDB(t *testing.T) *history.DB {
	t.Helper()
	d, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestDashboard(t *testing.T) {
	db := testDB(t)
	if _, err := db.RecordCompile(history.CompileRun{ConfigPath: "pipeline.json", Fingerprint: "0123456789abcdef", Outcome: "ok", Rules: 2}); err != nil {
		t.Fatal(err)
	}
	s := NewServer(Options{ConfigPath: writeTestConfig(t, sortPipeline), DB: db})

	code, body := get(t, s.Handler(), "/")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", code, body)
	}
	first := strings.Index(body, "RANDOM_NUMBERS")
	second := strings.Index(body, "OUTPUT_SORTED")
	if first < 0 || second < 0 || first > second {
		t.Errorf("build order not rendered:\n%s", body)
	}
	for _, want := range []string{"cat RANDOM_NUMBERS | sort -n &gt; OUTPUT_SORTED", "sorted numbers", "0123456789ab", "badge-ok"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboard_CompileError(t *testing.T) {
	s := NewServer(Options{ConfigPath: writeTestConfig(t, `{"targets": ["a"], "stages": {
  "a": {"dependencies": {"in": "b"}, "command": "x $< > $@"},
  "b": {"dependencies": {"in": "a"}, "command": "y $< > $@"}}}`)})

	code, body := get(t, s.Handler(), "/")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "Compilation failed") || !strings.Contains(body, "dependency cycle") {
		t.Errorf("error not shown:\n%s", body)
	}
	if !strings.Contains(body, "No recorded compilations.") {
		t.Errorf("expected empty history without a database:\n%s", body)
	}
}

func TestMakefileAndDOT(t *testing.T) {
	s := NewServer(Options{ConfigPath: writeTestConfig(t, sortPipeline)})
	h := s.Handler()

	code, body := get(t, h, "/makefile")
	if code != http.StatusOK || !strings.Contains(body, "OUTPUT_SORTED: RANDOM_NUMBERS\n\tcat RANDOM_NUMBERS | sort -n > OUTPUT_SORTED\n") {
		t.Errorf("unexpected /makefile (%d):\n%s", code, body)
	}

	code, body = get(t, h, "/graph.dot")
	if code != http.StatusOK || !strings.HasPrefix(body, "digraph pipeline {") {
		t.Errorf("unexpected /graph.dot (%d):\n%s", code, body)
	}

	bad := NewServer(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	if code, _ := get(t, bad.Handler(), "/makefile"); code != http.StatusUnprocessableEntity {
		t.Errorf("status for missing config = %d, want 422", code)
	}
}

func TestAPICompiles(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 3; i++ {
		if _, err := db.RecordCompile(history.CompileRun{ConfigPath: "pipeline.json", Outcome: "ok"}); err != nil {
			t.Fatal(err)
		}
	}
	h := NewServer(Options{ConfigPath: "pipeline.json", DB: db}).Handler()

	code, body := get(t, h, "/api/compiles?limit=2")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var runs []history.CompileRun
	if err := json.Unmarshal([]byte(body), &runs); err != nil {
		t.Fatalf("decode: %v\n%s", err, body)
	}
	if len(runs) != 2 || runs[0].ID != 3 {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if !strings.Contains(body, `"config_path":"pipeline.json"`) {
		t.Errorf("expected snake_case fields: %s", body)
	}

	if code, _ := get(t, h, "/api/compiles?limit=-1"); code != http.StatusBadRequest {
		t.Errorf("status for bad limit = %d, want 400", code)
	}
}

func TestAPIWithoutDB(t *testing.T) {
	h := NewServer(Options{ConfigPath: "pipeline.json"}).Handler()
	for _, path := range []string{"/api/compiles", "/api/builds"} {
		code, body := get(t, h, path)
		if code != http.StatusOK || strings.TrimSpace(body) != "[]" {
			t.Errorf("%s = %d %q, want 200 []", path, code, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(Options{ConfigPath: writeTestConfig(t, sortPipeline)}).Handler()
	get(t, h, "/makefile")

	code, body := get(t, h, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, `pipeconfig_compiles_total{outcome="ok"} 1`) {
		t.Errorf("compile not counted:\n%s", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := NewServer(Options{ConfigPath: "pipeline.json"}).Handler()
	if code, _ := get(t, h, "/nope"); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestRelTime(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		ts   string
		want string
	}{
		{now.Format(time.RFC3339), "just now"},
		{now.Add(-5 * time.Minute).Format("2006-01-02 15:04:05"), "5m ago"},
		{now.Add(-3 * time.Hour).Format(time.RFC3339), "3h ago"},
		{now.Add(-72 * time.Hour).Format(time.RFC3339), "3d ago"},
		{"not a time", "not a time"},
	}
	for _, tt := range tests {
		if got := relTime(tt.ts); got != tt.want {
			t.Errorf("relTime(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}
