package databases

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentengine/internal/persistence"
)

// NewPostgresPresetStore returns a Postgres-backed read-only lookup over
// published agent presets (the AgentPresetDB table).
func NewPostgresPresetStore(pool *pgxpool.Pool) persistence.PresetStore {
	return &pgPresetStore{pool: pool}
}

type pgPresetStore struct {
	pool *pgxpool.Pool
}

func (s *pgPresetStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres preset store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agent_presets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    system_prompt TEXT NOT NULL DEFAULT '',
    skill_ids TEXT[] NOT NULL DEFAULT '{}',
    mcp_servers TEXT[] NOT NULL DEFAULT '{}',
    builtin_tools TEXT[] NOT NULL DEFAULT '{}',
    max_turns INTEGER NOT NULL DEFAULT 60,
    model_provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    executor_id TEXT NOT NULL DEFAULT '',
    api_response_mode TEXT NOT NULL DEFAULT 'non_streaming',
    published BOOLEAN NOT NULL DEFAULT FALSE
);
`)
	return err
}

func (s *pgPresetStore) Get(ctx context.Context, id string) (persistence.AgentPreset, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, system_prompt, skill_ids, mcp_servers, builtin_tools,
       max_turns, model_provider, model, executor_id, api_response_mode, published
FROM agent_presets WHERE id = $1`, id)

	var p persistence.AgentPreset
	if err := row.Scan(&p.ID, &p.Name, &p.SystemPrompt, &p.SkillIDs, &p.MCPServers, &p.BuiltinTools,
		&p.MaxTurns, &p.ModelProvider, &p.Model, &p.ExecutorID, &p.APIResponseMode, &p.Published); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.AgentPreset{}, persistence.ErrNotFound
		}
		return persistence.AgentPreset{}, err
	}
	return p, nil
}
