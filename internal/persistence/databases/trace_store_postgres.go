package databases

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentengine/internal/persistence"
)

// NewPostgresTraceStore returns a Postgres-backed trace recorder.
func NewPostgresTraceStore(pool *pgxpool.Pool) persistence.TraceStore {
	return &pgTraceStore{pool: pool}
}

type pgTraceStore struct {
	pool *pgxpool.Pool
}

func (s *pgTraceStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres trace store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS traces (
    id TEXT PRIMARY KEY,
    request TEXT NOT NULL,
    skills_used TEXT[] NOT NULL DEFAULT '{}',
    model_provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'running',
    success BOOLEAN NOT NULL DEFAULT FALSE,
    answer TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    total_turns INTEGER NOT NULL DEFAULT 0,
    total_input_tokens INTEGER NOT NULL DEFAULT 0,
    total_output_tokens INTEGER NOT NULL DEFAULT 0,
    steps JSONB,
    llm_calls JSONB,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    executor_name TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS traces_session_created_idx ON traces(session_id, created_at DESC);
`)
	return err
}

func (s *pgTraceStore) scan(row pgx.Row) (persistence.Trace, error) {
	var t persistence.Trace
	if err := row.Scan(
		&t.ID, &t.Request, &t.SkillsUsed, &t.ModelProvider, &t.Model, &t.Status,
		&t.Success, &t.Answer, &t.Error, &t.TotalTurns, &t.TotalInputTokens,
		&t.TotalOutputTokens, &t.Steps, &t.LLMCalls, &t.DurationMS,
		&t.ExecutorName, &t.SessionID, &t.CreatedAt,
	); err != nil {
		return persistence.Trace{}, err
	}
	return t, nil
}

func (s *pgTraceStore) Create(ctx context.Context, t persistence.Trace) (persistence.Trace, error) {
	if t.Status == "" {
		t.Status = persistence.TraceStatusRunning
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO traces (id, request, skills_used, model_provider, model, status, success, answer, error,
    total_turns, total_input_tokens, total_output_tokens, steps, llm_calls, duration_ms, executor_name,
    session_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING id, request, skills_used, model_provider, model, status, success, answer, error,
    total_turns, total_input_tokens, total_output_tokens, steps, llm_calls, duration_ms, executor_name,
    session_id, created_at`,
		t.ID, t.Request, t.SkillsUsed, t.ModelProvider, t.Model, t.Status, t.Success, t.Answer, t.Error,
		t.TotalTurns, t.TotalInputTokens, t.TotalOutputTokens, t.Steps, t.LLMCalls, t.DurationMS,
		t.ExecutorName, t.SessionID, t.CreatedAt)
	return s.scan(row)
}

func (s *pgTraceStore) Update(ctx context.Context, t persistence.Trace) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE traces
SET status = $2, success = $3, answer = $4, error = $5, total_turns = $6, total_input_tokens = $7,
    total_output_tokens = $8, steps = $9, llm_calls = $10, duration_ms = $11
WHERE id = $1`,
		t.ID, t.Status, t.Success, t.Answer, t.Error, t.TotalTurns, t.TotalInputTokens,
		t.TotalOutputTokens, t.Steps, t.LLMCalls, t.DurationMS)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgTraceStore) Get(ctx context.Context, id string) (persistence.Trace, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, request, skills_used, model_provider, model, status, success, answer, error,
    total_turns, total_input_tokens, total_output_tokens, steps, llm_calls, duration_ms, executor_name,
    session_id, created_at
FROM traces WHERE id = $1`, id)
	t, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Trace{}, persistence.ErrNotFound
	}
	return t, err
}

func (s *pgTraceStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]persistence.Trace, error) {
	query := `
SELECT id, request, skills_used, model_provider, model, status, success, answer, error,
    total_turns, total_input_tokens, total_output_tokens, steps, llm_calls, duration_ms, executor_name,
    session_id, created_at
FROM traces WHERE session_id = $1 ORDER BY created_at DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Trace
	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if out == nil {
		out = make([]persistence.Trace, 0)
	}
	return out, rows.Err()
}
