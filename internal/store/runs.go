package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stepcheck/internal/canon"
	"github.com/roach88/stepcheck/internal/harness"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Verdicts recorded for a run.
const (
	VerdictOK      = "OK"
	VerdictNG      = "NG"
	VerdictAborted = "ABORTED"
)

// Failure kinds.
const (
	KindRegister = "register"
	KindMemory   = "memory"
)

// RunRecord is one recorded harness run.
type RunRecord struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	RecordedAt    time.Time `json:"recorded_at"`
	FixtureName   string    `json:"fixture_name"`
	FixtureDigest string    `json:"fixture_digest"`
	Mode          string    `json:"mode"`
	Steps         int       `json:"steps"`
	PassCount     int       `json:"pass_count"`
	WritesMatched int       `json:"writes_matched"`
	Verdict       string    `json:"verdict"`
	Aborted       bool      `json:"aborted"`
	ReportDigest  string    `json:"report_digest"`
	ReportJSON    string    `json:"-"`

	Failures []StepFailure `json:"failures,omitempty"`
}

// StepFailure is one failed step of a run.
type StepFailure struct {
	Step   int    `json:"step"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// NewRunRecord builds a record from a report. Seq is assigned by WriteRun.
func NewRunRecord(id string, at time.Time, report *harness.Report) (RunRecord, error) {
	reportJSON, err := canon.Marshal(report)
	if err != nil {
		return RunRecord{}, fmt.Errorf("new run record: %w", err)
	}

	verdict := VerdictNG
	switch {
	case report.Aborted:
		verdict = VerdictAborted
	case report.Pass:
		verdict = VerdictOK
	}

	return RunRecord{
		ID:            id,
		RecordedAt:    at.UTC(),
		FixtureName:   report.Fixture,
		FixtureDigest: report.FixtureDigest,
		Mode:          report.Mode,
		Steps:         report.StepCount,
		PassCount:     report.PassCount,
		WritesMatched: report.WritesMatched,
		Verdict:       verdict,
		Aborted:       report.Aborted,
		ReportDigest:  report.Digest(),
		ReportJSON:    string(reportJSON),
		Failures:      failuresFromReport(report),
	}, nil
}

// failuresFromReport lists one memory row per divergence and one register
// row per failed step that had no divergence. Register detail is known only
// for the first failure.
func failuresFromReport(report *harness.Report) []StepFailure {
	var out []StepFailure
	first := report.FirstFailure
	for _, step := range report.FailedSteps {
		hadMemory := false
		for _, d := range report.MemoryDivergences {
			if d.Step != step {
				continue
			}
			hadMemory = true
			out = append(out, StepFailure{
				Step: step,
				Kind: KindMemory,
				Detail: fmt.Sprintf("e: %04x := %02x a: %04x := %02x",
					d.Expected.Address, d.Expected.Value, d.ActualAddress, d.ActualValue),
			})
		}

		switch {
		case first != nil && first.Step == step:
			if len(first.Mismatched) > 0 {
				out = append(out, StepFailure{
					Step:   step,
					Kind:   KindRegister,
					Detail: fmt.Sprintf("registers %v differ", first.Mismatched),
				})
			}
		case !hadMemory:
			out = append(out, StepFailure{Step: step, Kind: KindRegister, Detail: "registers differ"})
		}
	}
	return out
}

// WriteRun inserts a run and its failures in one transaction and returns
// the assigned seq.
func (s *Store) WriteRun(ctx context.Context, rec RunRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, recorded_at, fixture_name, fixture_digest, mode, steps,
		 pass_count, writes_matched, verdict, aborted, report_digest, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		seq,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		rec.FixtureName,
		rec.FixtureDigest,
		rec.Mode,
		rec.Steps,
		rec.PassCount,
		rec.WritesMatched,
		rec.Verdict,
		rec.Aborted,
		rec.ReportDigest,
		rec.ReportJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	for _, f := range rec.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO step_failures (run_id, step, kind, detail)
			VALUES (?, ?, ?, ?)
		`, rec.ID, f.Step, f.Kind, f.Detail)
		if err != nil {
			return 0, fmt.Errorf("write run: step %d: %w", f.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, nil
}

const runColumns = `id, seq, recorded_at, fixture_name, fixture_digest, mode, steps,
	pass_count, writes_matched, verdict, aborted, report_digest, report_json`

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run. Failures are not loaded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with its failures.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rec.Failures, err = s.StepFailures(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// StepFailures returns the failed steps of a run in step order.
func (s *Store) StepFailures(ctx context.Context, runID string) ([]StepFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, kind, detail
		FROM step_failures
		WHERE run_id = ?
		ORDER BY step ASC, kind COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query step failures: %w", err)
	}
	defer rows.Close()

	failures := []StepFailure{}
	for rows.Next() {
		var f StepFailure
		if err := rows.Scan(&f.Step, &f.Kind, &f.Detail); err != nil {
			return nil, fmt.Errorf("scan step failure: %w", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step failures: %w", err)
	}
	return failures, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec        RunRecord
		recordedAt string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Seq,
		&recordedAt,
		&rec.FixtureName,
		&rec.FixtureDigest,
		&rec.Mode,
		&rec.Steps,
		&rec.PassCount,
		&rec.WritesMatched,
		&rec.Verdict,
		&rec.Aborted,
		&rec.ReportDigest,
		&rec.ReportJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}

	rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return rec, fmt.Errorf("scan run %s: recorded_at: %w", rec.ID, err)
	}
	return rec, nil
}
