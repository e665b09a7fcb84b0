package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// CompileRun represents a row in the compile_runs table. Params holds the
// parameter overrides the compile ran with.
type CompileRun struct {
	ID          int64             `json:"id"`
	ConfigPath  string            `json:"config_path"`
	OutputPath  string            `json:"output_path,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Outcome     string            `json:"outcome"`
	Params      map[string]string `json:"params,omitempty"`
	Stages      int               `json:"stages"`
	Rules       int               `json:"rules"`
	DurationMs  int               `json:"duration_ms"`
	Error       string            `json:"error,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// BuildRun represents a row in the build_runs table.
type BuildRun struct {
	ID         int64  `json:"id"`
	CompileID  *int64 `json:"compile_id,omitempty"`
	Makefile   string `json:"makefile"`
	Command    string `json:"command"`
	Passed     bool   `json:"passed"`
	UpToDate   bool   `json:"up_to_date"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// RecordCompile inserts a compile run and returns its ID.
func (d *DB) RecordCompile(r CompileRun) (int64, error) {
	var params sql.NullString
	if len(r.Params) > 0 {
		data, err := json.Marshal(r.Params)
		if err != nil {
			return 0, fmt.Errorf("record compile: %w", err)
		}
		params = sql.NullString{String: string(data), Valid: true}
	}
	res, err := d.conn.Exec(
		`INSERT INTO compile_runs (config_path, output_path, fingerprint, outcome, params, stages, rules, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ConfigPath, nullString(r.OutputPath), nullString(r.Fingerprint), r.Outcome, params, r.Stages, r.Rules, r.DurationMs, nullString(r.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}
	return id, nil
}

const compileColumns = `id, config_path, output_path, fingerprint, outcome, params, stages, rules, duration_ms, error, timestamp`

// ListCompiles returns the most recent compile runs, newest first. A limit of
// zero or less returns all of them.
func (d *DB) ListCompiles(limit int) ([]CompileRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.conn.Query(
		`SELECT `+compileColumns+` FROM compile_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list compiles: %w", err)
	}
	defer rows.Close()

	var runs []CompileRun
	for rows.Next() {
		r, err := scanCompile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compile run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LastCompile returns the most recent successful compile of configPath, or
// nil if there is none.
func (d *DB) LastCompile(configPath string) (*CompileRun, error) {
	row := d.conn.QueryRow(
		`SELECT `+compileColumns+` FROM compile_runs
		 WHERE config_path = ? AND outcome = 'ok' ORDER BY id DESC LIMIT 1`,
		configPath,
	)
	r, err := scanCompile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last compile: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompile(s scanner) (*CompileRun, error) {
	var r CompileRun
	var output, fingerprint, params, errText sql.NullString
	var durationMs sql.NullInt64
	if err := s.Scan(&r.ID, &r.ConfigPath, &output, &fingerprint, &r.Outcome, &params, &r.Stages, &r.Rules, &durationMs, &errText, &r.Timestamp); err != nil {
		return nil, err
	}
	if params.Valid {
		if err := json.Unmarshal([]byte(params.String), &r.Params); err != nil {
			return nil, fmt.Errorf("decode params of compile %d: %w", r.ID, err)
		}
	}
	r.OutputPath = output.String
	r.Fingerprint = fingerprint.String
	r.Error = errText.String
	r.DurationMs = int(durationMs.Int64)
	return &r, nil
}

// RecordBuild inserts a build run and returns its ID.
func (d *DB) RecordBuild(b BuildRun) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO build_runs (compile_id, makefile, command, passed, up_to_date, exit_code, duration_ms, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.CompileID, b.Makefile, b.Command, b.Passed, b.UpToDate, b.ExitCode, b.DurationMs, nullString(b.Summary),
	)
	if err != nil {
		return 0, fmt.Errorf("record build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record build: %w", err)
	}
	return id, nil
}

// ListBuilds returns the most recent build runs, newest first.
func (d *DB) ListBuilds(limit int) ([]BuildRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.conn.Query(
		`SELECT id, compile_id, makefile, command, passed, up_to_date, exit_code, duration_ms, summary, timestamp
		 FROM build_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var builds []BuildRun
	for rows.Next() {
		var b BuildRun
		var compileID, exitCode, durationMs sql.NullInt64
		var summary sql.NullString
		if err := rows.Scan(&b.ID, &compileID, &b.Makefile, &b.Command, &b.Passed, &b.UpToDate, &exitCode, &durationMs, &summary, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("scan build run: %w", err)
		}
		if compileID.Valid {
			v := compileID.Int64
			b.CompileID = &v
		}
		b.ExitCode = int(exitCode.Int64)
		b.DurationMs = int(durationMs.Int64)
		b.Summary = summary.String
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
