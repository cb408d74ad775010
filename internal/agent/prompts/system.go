package prompts

import "fmt"

// DefaultSystemPrompt builds the base system prompt for a run, describing
// the working-directory sandbox and tool-use conventions, then appends the
// caller-supplied custom_system_prompt (spec.md §6.1) verbatim so published
// presets and CLI callers can extend the base behavior without forking it.
func DefaultSystemPrompt(workdir, custom string) string {
	base := fmt.Sprintf(`You are a helpful assistant that can plan and execute tools.

Rules:
- Always consider which tools are available before answering; use them when the request needs current information, code execution, or file access.
- Treat any path-like argument as relative to the locked working directory: %s
- Never use absolute paths or attempt to escape the working directory.
- Prefer short, deterministic commands; avoid interactive prompts.
- After tool calls, summarize actions and results clearly.
- Be cautious with destructive operations. If a command could modify files, consider listing files first.`, workdir)

	if custom == "" {
		return base
	}
	return base + "\n\n" + custom
}
