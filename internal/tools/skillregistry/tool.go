// Package skillregistry exposes the read-only Skill Registry client
// (internal/skills) as two agent-callable tools: list_skills and
// fetch_skill.
package skillregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"agentengine/internal/skills"
)

type listTool struct {
	client skills.RegistryClient
}

// NewListTool constructs the list_skills tool backed by the given registry client.
func NewListTool(client skills.RegistryClient) *listTool {
	return &listTool{client: client}
}

func (t *listTool) Name() string { return "list_skills" }

func (t *listTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "List active skills available from the Skill Registry, with name, description, and category for each.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *listTool) Call(ctx context.Context, _ json.RawMessage) (any, error) {
	summaries, err := t.client.ListSkills(ctx)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{"ok": true, "skills": summaries}, nil
}

type fetchTool struct {
	client skills.RegistryClient
}

// NewFetchTool constructs the fetch_skill tool backed by the given registry client.
func NewFetchTool(client skills.RegistryClient) *fetchTool {
	return &fetchTool{client: client}
}

func (t *fetchTool) Name() string { return "fetch_skill" }

func (t *fetchTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Fetch the current skill.md content for a named skill from the Skill Registry.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Skill name as returned by list_skills"},
			},
		},
	}
}

func (t *fetchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Name == "" {
		return map[string]any{"ok": false, "error": "name is required"}, nil
	}
	content, err := t.client.FetchSkill(ctx, args.Name)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{"ok": true, "name": args.Name, "content": content}, nil
}
