// Package storage holds the bot's local state file and the Postgres run history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

const runsTable = "pipeline_runs"

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id SERIAL PRIMARY KEY,
	run_id VARCHAR(64) UNIQUE NOT NULL,
	topic TEXT NOT NULL,
	score TEXT NOT NULL,
	ranked_summary TEXT,
	scripts JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RunStore records finished runs in Postgres.
type RunStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRunStore connects, pings and creates the schema.
func NewRunStore(ctx context.Context, dsn string, log *slog.Logger) (*RunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &RunStore{db: db, log: logger.OrDefault(log).With("component", "runstore")}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("run history connected")
	return s, nil
}

func (s *RunStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *RunStore) Name() string { return "postgres" }

// Append stores one run. Re-appending the same run id is a no-op.
func (s *RunStore) Append(ctx context.Context, e topics.Entry) error {
	query, args, err := insertRunQuery(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *RunStore) Recent(ctx context.Context, n int) ([]topics.Entry, error) {
	query, args, err := recentRunsQuery(n)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []topics.Entry
	for rows.Next() {
		var (
			e       topics.Entry
			summary sql.NullString
			scripts []byte
		)
		if err := rows.Scan(&e.RunID, &e.Topic, &e.Score, &summary, &scripts, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.RankedSummary = summary.String
		if err := json.Unmarshal(scripts, &e.Scripts); err != nil {
			s.log.Warn("bad scripts column", "run_id", e.RunID, "error", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (s *RunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func insertRunQuery(e topics.Entry) (string, []interface{}, error) {
	scripts := e.Scripts
	if scripts == nil {
		scripts = []topics.ScriptIdea{}
	}
	raw, err := json.Marshal(scripts)
	if err != nil {
		return "", nil, fmt.Errorf("marshal scripts: %w", err)
	}

	return psql.Insert(runsTable).
		Columns("run_id", "topic", "score", "ranked_summary", "scripts", "created_at").
		Values(e.RunID, e.Topic, e.Score, e.RankedSummary, string(raw), e.Timestamp).
		Suffix("ON CONFLICT (run_id) DO NOTHING").
		ToSql()
}

func recentRunsQuery(n int) (string, []interface{}, error) {
	if n <= 0 {
		n = 10
	}
	return psql.Select("run_id", "topic", "score", "ranked_summary", "scripts", "created_at").
		From(runsTable).
		OrderBy("created_at DESC").
		Limit(uint64(n)).
		ToSql()
}
