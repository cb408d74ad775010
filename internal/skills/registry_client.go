package skills

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSkillNotFound is returned when a requested skill has no current version.
var ErrSkillNotFound = errors.New("skills: not found")

// Summary is the minimal listing shape the engine needs when deciding
// which skills to expose for a run; it does not carry skill.md content.
type Summary struct {
	Name           string
	Description    string
	CurrentVersion string
	Status         string
	Category       string
}

// RegistryClient is a read-only view over the external Skill Registry's
// storage. It never writes: creation, versioning, and import/export stay
// the registry service's job.
type RegistryClient interface {
	ListSkills(ctx context.Context) ([]Summary, error)
	FetchSkill(ctx context.Context, name string) (string, error)
}

// NewPostgresRegistryClient returns a RegistryClient reading the same
// skills/skill_versions tables the Skill Registry service owns.
func NewPostgresRegistryClient(pool *pgxpool.Pool) RegistryClient {
	return &pgRegistryClient{pool: pool}
}

type pgRegistryClient struct {
	pool *pgxpool.Pool
}

func (c *pgRegistryClient) ListSkills(ctx context.Context) ([]Summary, error) {
	rows, err := c.pool.Query(ctx, `
SELECT name, COALESCE(description, ''), COALESCE(current_version, ''), status, COALESCE(category, '')
FROM skills
WHERE status = 'active'
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Description, &s.CurrentVersion, &s.Status, &s.Category); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if out == nil {
		out = make([]Summary, 0)
	}
	return out, rows.Err()
}

func (c *pgRegistryClient) FetchSkill(ctx context.Context, name string) (string, error) {
	row := c.pool.QueryRow(ctx, `
SELECT v.skill_md
FROM skills s
JOIN skill_versions v ON v.skill_id = s.id AND v.version = s.current_version
WHERE s.name = $1 AND s.status = 'active'`, name)
	var content *string
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSkillNotFound
		}
		return "", err
	}
	if content == nil {
		return "", ErrSkillNotFound
	}
	return *content, nil
}

// NewNoopRegistryClient returns a RegistryClient that always reports an
// empty catalog. Used when no Postgres DSN is configured so the
// list_skills/fetch_skill tools stay registerable without a database.
func NewNoopRegistryClient() RegistryClient {
	return noopRegistryClient{}
}

type noopRegistryClient struct{}

func (noopRegistryClient) ListSkills(context.Context) ([]Summary, error) {
	return []Summary{}, nil
}

func (noopRegistryClient) FetchSkill(context.Context, string) (string, error) {
	return "", ErrSkillNotFound
}
