package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"agentengine/internal/agent/prompts"
)

// Compression constants, spec.md §6.5.
const (
	CompressionThresholdRatio = 0.70
	RecentTurnsTokenBudget    = 0.25
	MaxRecentTurns            = 5
	CharsPerToken             = 3.5

	maxSerializedTranscriptChars = 100_000
	maxToolInputPreviewChars     = 500
	maxToolResultPreviewChars    = 1000
	summaryMaxOutputTokens       = 4096
)

// Summarizer is the narrow client interface the compressor recurses
// through, per the design note in spec.md §9: the compressor calls the LLM
// to synthesize summaries but never goes through the full turn loop to do
// it.
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt, userText string, maxTokens int) (string, error)
}

// ShouldCompress implements P8: strict inequality against the threshold.
func ShouldCompress(lastInputTokens, contextLimit int) bool {
	return float64(lastInputTokens) > CompressionThresholdRatio*float64(contextLimit)
}

// estimateTokens applies the chars/3.5 rule of thumb (spec.md §4.5 step 2).
func estimateTokens(s string) int {
	return int(float64(len(s)) / CharsPerToken)
}

// turnBoundaries returns the indices of messages that open a logical turn
// per invariant M2.
func turnBoundaries(msgs []Message) []int {
	var idx []int
	for i, m := range msgs {
		if m.IsLogicalTurnBoundary() {
			idx = append(idx, i)
		}
	}
	return idx
}

// messageTokens estimates the token cost of one message for the
// turn-accumulation walk.
func messageTokens(m Message) int {
	if len(m.Blocks) == 0 {
		return estimateTokens(m.Text)
	}
	total := 0
	for _, b := range m.Blocks {
		switch v := b.(type) {
		case TextBlock:
			total += estimateTokens(v.Text)
		case ToolUseBlock:
			total += estimateTokens(v.Name) + estimateTokens(string(v.Input))
		case ToolResultBlock:
			total += estimateTokens(v.Content)
		}
	}
	return total
}

// Compress implements the compressor algorithm of spec.md §4.5. It returns
// the new working context plus the summary input/output token counts it
// consumed producing it (for the turn loop's token accounting).
func Compress(ctx context.Context, messages []Message, contextLimit int, summarizer Summarizer) (result []Message, tokensIn, tokensOut int, err error) {
	boundaries := turnBoundaries(messages)
	if len(boundaries) < 2 {
		return messages, 0, 0, nil
	}

	recentBudget := RecentTurnsTokenBudget * float64(contextLimit)

	// Walk turns from the end, accumulating tokens, to find k = kept count.
	k := 0
	acc := 0.0
	for i := len(boundaries) - 1; i >= 0; i-- {
		end := len(messages)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		turnTokens := 0
		for _, m := range messages[boundaries[i]:end] {
			turnTokens += messageTokens(m)
		}
		if k > 0 && acc+float64(turnTokens) > recentBudget {
			break
		}
		acc += float64(turnTokens)
		k++
		if k >= MaxRecentTurns {
			break
		}
	}
	if k == 0 {
		k = 1
	}

	if k >= len(boundaries) {
		// Everything fits; nothing to compress.
		return messages, 0, 0, nil
	}

	splitAt := boundaries[len(boundaries)-k]
	oldMessages := messages[:splitAt]
	recentMessages := messages[splitAt:]

	readSet, modSet := extractFileOperations(oldMessages)

	iterative := false
	var previousSummaryText string
	if len(oldMessages) > 0 {
		if text := oldMessages[0].PlainText(); strings.Contains(text, "<summary>") {
			iterative = true
			previousSummaryText = extractSummaryBody(text)
			prevRead, prevMod := extractPreviousFileTracking(text)
			readSet = mergeSets(readSet, prevRead)
			modSet = mergeSets(modSet, prevMod)
		}
	}

	var turnPrefixSummary string
	if k == 1 {
		singleTurnTokens := 0
		for _, m := range recentMessages {
			singleTurnTokens += messageTokens(m)
		}
		if float64(singleTurnTokens) > 0.5*recentBudget {
			prefix, suffix, ok := splitOversizedTurn(recentMessages, recentBudget)
			if ok {
				summary, in, out := summarizeTurnPrefix(ctx, prefix, summarizer)
				tokensIn += in
				tokensOut += out
				turnPrefixSummary = summary
				recentMessages = suffix
			}
		}
	}

	transcript := serializeTranscript(oldMessages)

	var systemPrompt, userText string
	fileTracking := buildFileTrackingXML(readSet, modSet)
	if iterative {
		systemPrompt = strings.Replace(prompts.SummaryUpdate, "{previous_summary}", previousSummaryText, 1)
		systemPrompt = strings.Replace(systemPrompt, "{file_tracking_section}", fileTracking, 1)
		userText = transcript
	} else {
		systemPrompt = strings.Replace(prompts.InitialSummary, "{file_tracking_section}", fileTracking, 1)
		userText = transcript
	}

	summaryText, in, out, sErr := callSummarizer(ctx, summarizer, systemPrompt, userText)
	tokensIn += in
	tokensOut += out
	if sErr != nil {
		// Never fatal: fall back to a truncated raw transcript (spec.md §7.6).
		summaryText = truncateMiddle(transcript, maxSerializedTranscriptChars)
	}

	summaryText = ensureWrappedSummary(summaryText, fileTracking)
	if turnPrefixSummary != "" {
		summaryText += "\n\n[Recent turn prefix context]: " + turnPrefixSummary
	}

	compressionMessage := NewUserText(
		"This session is being continued from a previous conversation that ran out of context. " +
			"The summary below covers the earlier portion of the conversation.\n\n" + summaryText +
			"\n\nPlease continue the conversation from where it left off without asking the user " +
			"any further questions. Continue with the last task that was being worked on.",
	)

	out2 := []Message{compressionMessage}
	if len(recentMessages) > 0 && recentMessages[0].Role == "user" {
		out2 = append(out2, NewAssistantText("I understand the context. Let me continue from where we left off."))
	}
	out2 = append(out2, recentMessages...)

	return out2, tokensIn, tokensOut, nil
}

func callSummarizer(ctx context.Context, s Summarizer, systemPrompt, userText string) (string, int, int, error) {
	if s == nil {
		return "", 0, 0, fmt.Errorf("no summarizer configured")
	}
	text, err := s.Summarize(ctx, systemPrompt, userText, summaryMaxOutputTokens)
	if err != nil {
		return "", estimateTokens(systemPrompt + userText), 0, err
	}
	return text, estimateTokens(systemPrompt + userText), estimateTokens(text), nil
}

func summarizeTurnPrefix(ctx context.Context, prefix []Message, s Summarizer) (string, int, int) {
	transcript := serializeTranscript(prefix)
	text, in, out, err := callSummarizer(ctx, s, prompts.TurnPrefixSummary, transcript)
	if err != nil {
		return truncateMiddle(transcript, maxSerializedTranscriptChars), in, out
	}
	return text, in, out
}

// splitOversizedTurn implements spec.md §4.5 step 7: find the latest safe
// cut point — an assistant message not immediately followed by a
// tool_result — whose suffix still fits the recent-turns budget.
func splitOversizedTurn(turn []Message, budget float64) (prefix, suffix []Message, ok bool) {
	var safeCuts []int
	for i, m := range turn {
		if m.Role != "assistant" {
			continue
		}
		followedByToolResult := i+1 < len(turn) && turn[i+1].IsToolResultMessage()
		if !followedByToolResult {
			safeCuts = append(safeCuts, i+1)
		}
	}
	// Prefer the latest cut that still fits the budget (spec.md §9 Open Question).
	for i := len(safeCuts) - 1; i >= 0; i-- {
		cut := safeCuts[i]
		suffixTokens := 0
		for _, m := range turn[cut:] {
			suffixTokens += messageTokens(m)
		}
		if float64(suffixTokens) <= budget {
			return turn[:cut], turn[cut:], true
		}
	}
	return nil, nil, false
}

var fileArgKeys = []string{"file_path", "path", "pattern", "filename"}

func extractFileOperations(msgs []Message) (readSet, modSet []string) {
	readSeen := map[string]struct{}{}
	modSeen := map[string]struct{}{}
	for _, m := range msgs {
		for _, b := range m.Blocks {
			switch v := b.(type) {
			case ToolUseBlock:
				path := firstArg(v.Input, fileArgKeys)
				if path == "" {
					continue
				}
				switch v.Name {
				case "read", "glob", "grep":
					readSeen[path] = struct{}{}
				case "write", "edit":
					modSeen[path] = struct{}{}
				}
			case ToolResultBlock:
				for _, p := range extractNewFiles(v.Content) {
					modSeen[p] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(readSeen), sortedKeys(modSeen)
}

var newFilesRe = regexp.MustCompile(`"new_files"\s*:\s*\[([^\]]*)\]`)
var quotedRe = regexp.MustCompile(`"([^"]+)"`)

func extractNewFiles(resultContent string) []string {
	m := newFilesRe.FindStringSubmatch(resultContent)
	if m == nil {
		return nil
	}
	var out []string
	for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
		out = append(out, q[1])
	}
	return out
}

var fileArgRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(fileArgKeys))
	for _, k := range fileArgKeys {
		m[k] = regexp.MustCompile(`"` + k + `"\s*:\s*"([^"]*)"`)
	}
	return m
}()

func firstArg(raw []byte, keys []string) string {
	if len(raw) == 0 {
		return ""
	}
	for _, k := range keys {
		re := fileArgRes[k]
		if re == nil {
			re = regexp.MustCompile(`"` + k + `"\s*:\s*"([^"]*)"`)
		}
		if m := re.FindSubmatch(raw); m != nil {
			return string(m[1])
		}
	}
	return ""
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mergeSets(a, b []string) []string {
	seen := map[string]struct{}{}
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	return sortedKeys(seen)
}

func buildFileTrackingXML(readSet, modSet []string) string {
	var sb strings.Builder
	sb.WriteString("\n<read-files>\n")
	for _, f := range readSet {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	sb.WriteString("</read-files>\n<modified-files>\n")
	for _, f := range modSet {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	sb.WriteString("</modified-files>\n")
	return sb.String()
}

var readFilesRe = regexp.MustCompile(`(?s)<read-files>(.*?)</read-files>`)
var modFilesRe = regexp.MustCompile(`(?s)<modified-files>(.*?)</modified-files>`)

func extractPreviousFileTracking(text string) (readSet, modSet []string) {
	if m := readFilesRe.FindStringSubmatch(text); m != nil {
		readSet = splitNonEmptyLines(m[1])
	}
	if m := modFilesRe.FindStringSubmatch(text); m != nil {
		modSet = splitNonEmptyLines(m[1])
	}
	return readSet, modSet
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

var summaryBodyRe = regexp.MustCompile(`(?s)<summary>(.*)</summary>`)

func extractSummaryBody(text string) string {
	if m := summaryBodyRe.FindStringSubmatch(text); m != nil {
		// Strip any trailing file-tracking XML so the update prompt embeds
		// only the narrative sections, not the sets it's about to re-merge.
		body := m[1]
		body = readFilesRe.ReplaceAllString(body, "")
		body = modFilesRe.ReplaceAllString(body, "")
		return strings.TrimSpace(body)
	}
	return text
}

func ensureWrappedSummary(text, fileTracking string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<summary>") && strings.HasSuffix(trimmed, "</summary>") {
		if strings.Contains(trimmed, "<read-files>") {
			return trimmed
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "<summary>"), "</summary>")
		return "<summary>" + inner + fileTracking + "</summary>"
	}
	return "<summary>\n" + trimmed + fileTracking + "\n</summary>"
}

func serializeTranscript(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if len(m.Blocks) == 0 {
			fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, m.Text)
			continue
		}
		for _, b := range m.Blocks {
			switch v := b.(type) {
			case TextBlock:
				fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, v.Text)
			case ToolUseBlock:
				fmt.Fprintf(&sb, "[%s -> tool_use(%s)]: %s\n", m.Role, v.Name, truncate(string(v.Input), maxToolInputPreviewChars))
			case ToolResultBlock:
				fmt.Fprintf(&sb, "[tool_result]: %s\n", truncate(v.Content, maxToolResultPreviewChars))
			}
		}
	}
	s := sb.String()
	if len(s) > maxSerializedTranscriptChars {
		return truncateMiddle(s, maxSerializedTranscriptChars)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

func truncateMiddle(s string, n int) string {
	if len(s) <= n {
		return s
	}
	half := n / 2
	return s[:half] + "\n...(truncated)...\n" + s[len(s)-half:]
}
