package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_runs (
	run_id                 TEXT PRIMARY KEY,
	query                  TEXT NOT NULL,
	method                 TEXT NOT NULL,
	started_at             TEXT NOT NULL,
	finished_at            TEXT NOT NULL,
	total_results          INTEGER NOT NULL,
	average_score          DOUBLE PRECISION NOT NULL,
	high_quality_count     INTEGER NOT NULL,
	high_quality_threshold DOUBLE PRECISION NOT NULL,
	unique_domains         TEXT NOT NULL,
	failures               INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS evaluation_results (
	run_id         TEXT NOT NULL,
	position       INTEGER NOT NULL,
	url            TEXT NOT NULL,
	title          TEXT NOT NULL,
	source         TEXT NOT NULL,
	overall_score  DOUBLE PRECISION NOT NULL,
	summary        TEXT NOT NULL,
	tags           TEXT NOT NULL,
	criteria       TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	error_kind     TEXT NOT NULL,
	evaluated_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS evaluation_results_url ON evaluation_results (url);`

// RunSummary is one archived run without its results.
type RunSummary struct {
	RunID      string
	Query      string
	Method     domain.EvaluationMethod
	StartedAt  time.Time
	FinishedAt time.Time
	Metrics    domain.QueryMetrics
	Failures   int
}

// Archive persists finished runs into a SQL database.
type Archive struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	owned   bool
}

var _ ports.ResultArchive = (*Archive)(nil)

// Open connects to driver (sqlite or postgres) and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*Archive, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
	case DriverPostgres, "postgresql":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("archive: dsn is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	archive, err := NewArchive(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	archive.owned = true
	return archive, nil
}

// NewArchive wraps an existing connection pool and migrates it.
func NewArchive(ctx context.Context, db *sql.DB, driver string) (*Archive, error) {
	if db == nil {
		return nil, errors.New("archive: nil db")
	}
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	a := &Archive{db: db, builder: sq.StatementBuilder.PlaceholderFormat(placeholder)}
	if err := a.migrate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create archive schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool when Archive opened it.
func (a *Archive) Close() error {
	if a == nil || !a.owned {
		return nil
	}
	return a.db.Close()
}

// SaveRun upserts the run row and replaces its results.
func (a *Archive) SaveRun(ctx context.Context, report domain.RunReport) error {
	if a == nil || a.db == nil {
		return nil
	}
	domains, err := json.Marshal(report.Metrics.UniqueDomains)
	if err != nil {
		return fmt.Errorf("encode domains: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runInsert := a.builder.Insert("query_runs").
		Columns("run_id", "query", "method", "started_at", "finished_at",
			"total_results", "average_score", "high_quality_count",
			"high_quality_threshold", "unique_domains", "failures").
		Values(report.RunID, report.Query, string(report.Method),
			formatTime(report.StartedAt), formatTime(report.FinishedAt),
			report.Metrics.TotalResults, report.Metrics.AverageScore,
			report.Metrics.HighQualityCount, report.Metrics.HighQualityThreshold,
			string(domains), len(report.Failures)).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			total_results = EXCLUDED.total_results,
			average_score = EXCLUDED.average_score,
			high_quality_count = EXCLUDED.high_quality_count,
			high_quality_threshold = EXCLUDED.high_quality_threshold,
			unique_domains = EXCLUDED.unique_domains,
			failures = EXCLUDED.failures`)
	if err := execBuilt(ctx, tx, runInsert); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if err := execBuilt(ctx, tx, a.builder.Delete("evaluation_results").Where(sq.Eq{"run_id": report.RunID})); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	if len(report.Results) > 0 {
		insert := a.builder.Insert("evaluation_results").
			Columns("run_id", "position", "url", "title", "source", "overall_score",
				"summary", "tags", "criteria", "content_hash", "error_kind", "evaluated_at")
		for i, r := range report.Results {
			tags, err := json.Marshal(r.Tags)
			if err != nil {
				return fmt.Errorf("encode tags: %w", err)
			}
			criteria, err := json.Marshal(r.CriteriaScores)
			if err != nil {
				return fmt.Errorf("encode criteria: %w", err)
			}
			insert = insert.Values(report.RunID, i, r.URL, r.Title, r.Source, r.OverallScore,
				r.Summary, string(tags), string(criteria), r.ContentHash, string(r.ErrorKind),
				formatTime(r.EvaluatedAt))
		}
		if err := execBuilt(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// RecentRuns lists up to limit runs, newest first.
func (a *Archive) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := a.builder.
		Select("run_id", "query", "method", "started_at", "finished_at", "total_results",
			"average_score", "high_quality_count", "high_quality_threshold", "unique_domains", "failures").
		From("query_runs").
		OrderBy("started_at DESC", "run_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run             RunSummary
			method, domains string
			started, ended  string
		)
		if err := rows.Scan(&run.RunID, &run.Query, &method, &started, &ended,
			&run.Metrics.TotalResults, &run.Metrics.AverageScore, &run.Metrics.HighQualityCount,
			&run.Metrics.HighQualityThreshold, &domains, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Method = domain.EvaluationMethod(method)
		run.Metrics.Query = run.Query
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(ended)
		if err := json.Unmarshal([]byte(domains), &run.Metrics.UniqueDomains); err != nil {
			return nil, fmt.Errorf("decode domains: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

// Results returns the ranked results archived for runID.
func (a *Archive) Results(ctx context.Context, runID string) ([]domain.EvaluationResult, error) {
	query, args, err := a.builder.
		Select("url", "title", "source", "overall_score", "summary", "tags", "criteria",
			"content_hash", "error_kind", "evaluated_at").
		From("evaluation_results").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build results query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.EvaluationResult
	for rows.Next() {
		var (
			r                        domain.EvaluationResult
			tags, criteria, kind, at string
		)
		if err := rows.Scan(&r.URL, &r.Title, &r.Source, &r.OverallScore, &r.Summary,
			&tags, &criteria, &r.ContentHash, &kind, &at); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if err := json.Unmarshal([]byte(criteria), &r.CriteriaScores); err != nil {
			return nil, fmt.Errorf("decode criteria: %w", err)
		}
		r.ErrorKind = domain.ErrorKind(kind)
		r.EvaluatedAt = parseTime(at)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func execBuilt(ctx context.Context, tx *sql.Tx, stmt sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
