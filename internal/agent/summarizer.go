package agent

import (
	"context"
	"fmt"

	"agentengine/internal/llm"
)

// providerSummarizer adapts an llm.Provider into the Compressor's narrow
// Summarizer contract: one system prompt, one user text blob, no tools, no
// turn-loop machinery.
type providerSummarizer struct {
	provider llm.Provider
	model    string
}

// NewLLMSummarizer wraps an existing provider client for use as the
// Compressor's recursive summarization backend (spec.md §4.5/§9).
func NewLLMSummarizer(provider llm.Provider, model string) Summarizer {
	return &providerSummarizer{provider: provider, model: model}
}

func (s *providerSummarizer) Summarize(ctx context.Context, systemPrompt, userText string, maxTokens int) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userText},
	}
	resp, err := s.provider.Chat(ctx, msgs, nil, s.model)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return resp.Content, nil
}
