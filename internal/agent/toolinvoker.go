package agent

import (
	"context"
	"encoding/json"
	"regexp"

	"agentengine/internal/tools"
)

// ToolInvoker wraps a tools.Registry as the pure dispatch contract of
// spec.md §4.2: invoke(name, input, ctx) -> string, never throws.
type ToolInvoker struct {
	Registry tools.Registry
}

// Invoke dispatches a single tool call and always returns a string result,
// serializing any error into the payload rather than propagating it.
func (t *ToolInvoker) Invoke(ctx context.Context, name string, input json.RawMessage) string {
	if t == nil || t.Registry == nil {
		return `{"ok":false,"error":"no tool registry configured"}`
	}
	payload, err := t.Registry.Dispatch(ctx, name, input)
	if err != nil {
		b, _ := json.Marshal(map[string]any{"ok": false, "error": err.Error()})
		return string(b)
	}
	return string(payload)
}

// outputFileProducers are the tool names whose results are scanned for
// declared output files, per spec.md §4.4.j.
var outputFileProducers = map[string]struct{}{
	"execute_code": {},
	"bash":         {},
	"write":        {},
}

// OutputFile describes one file a tool declared it produced.
type OutputFile struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	DownloadURL string `json:"download_url"`
}

// HarvestOutputFiles scans a tool result for declared output files when the
// tool is one of the known producers. The result is expected (best-effort)
// to carry a JSON object with an "output_files" array of the OutputFile
// shape; tools that don't emit structured results simply yield nothing.
func HarvestOutputFiles(toolName, result string) []OutputFile {
	if _, ok := outputFileProducers[toolName]; !ok {
		return nil
	}
	var parsed struct {
		OutputFiles []OutputFile `json:"output_files"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		return nil
	}
	return parsed.OutputFiles
}

var skillNameRe = regexp.MustCompile(`"skill_name"\s*:\s*"([^"]+)"`)

// ExtractSkillUsage pulls the skill_name argument from a get_skill tool_use
// input, if present. Listing skills does not count as using one, per
// spec.md scenario 2.
func ExtractSkillUsage(toolName string, input json.RawMessage) (string, bool) {
	if toolName != "get_skill" {
		return "", false
	}
	m := skillNameRe.FindSubmatch(input)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
