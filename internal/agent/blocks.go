package agent

import (
	"encoding/json"
	"fmt"

	"agentengine/internal/llm"
)

// Block is one entry in a Message's content list. The engine's working
// context is always a list of blocks internally; providers see the
// flattened llm.Message shape only at the translation boundary
// (toLLMMessages/fromLLMAssistant/flattenForProvider below).
type Block interface {
	isBlock()
}

// TextBlock carries natural-language content.
type TextBlock struct {
	Text string
}

// ToolUseBlock is an assistant request to invoke a tool. ID must be unique
// within the conversation; it is what a later ToolResultBlock references.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock carries the outcome of a prior ToolUseBlock. It always
// appears inside a user-role Message.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// ImageBlock carries an inline image, either supplied by the caller as
// part of the initial request or produced by the model.
type ImageBlock struct {
	Data     []byte
	MIMEType string
}

func (TextBlock) isBlock()       {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}
func (ImageBlock) isBlock()      {}

// Message is a conversation entry per spec.md §3: role plus content, where
// content is either plain text or an ordered list of Blocks. Blocks is nil
// for a plain-string message; Text is used in that case instead.
type Message struct {
	Role   string // "user" | "assistant"
	Text   string // set when content is a plain string
	Blocks []Block
}

// IsToolResultMessage reports whether m's content is a list containing only
// ToolResultBlock entries — the definition of "not a logical turn boundary"
// from spec.md invariant M2.
func (m Message) IsToolResultMessage() bool {
	if len(m.Blocks) == 0 {
		return false
	}
	for _, b := range m.Blocks {
		if _, ok := b.(ToolResultBlock); !ok {
			return false
		}
	}
	return true
}

// IsLogicalTurnBoundary reports whether m opens a new logical turn per
// invariant M2: a user message whose content is not a list of tool_result
// blocks.
func (m Message) IsLogicalTurnBoundary() bool {
	return m.Role == "user" && !m.IsToolResultMessage()
}

// ToolUses returns the ToolUseBlock entries in m, in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// PlainText returns a best-effort text rendering of m, concatenating any
// TextBlock entries when Blocks is set, or Text otherwise. Used by the
// compressor's transcript serialization and by log lines.
func (m Message) PlainText() string {
	if len(m.Blocks) == 0 {
		return m.Text
	}
	var s string
	for _, b := range m.Blocks {
		if tb, ok := b.(TextBlock); ok {
			if s != "" {
				s += "\n"
			}
			s += tb.Text
		}
	}
	return s
}

// NewUserText builds a plain-string user message.
func NewUserText(text string) Message { return Message{Role: "user", Text: text} }

// NewAssistantText builds a plain-string assistant message.
func NewAssistantText(text string) Message { return Message{Role: "assistant", Text: text} }

// NewToolResultsMessage builds the single user message carrying all tool
// results for a turn, in order, per spec.md §4.4.k.
func NewToolResultsMessage(results []ToolResultBlock) Message {
	blocks := make([]Block, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r)
	}
	return Message{Role: "user", Blocks: blocks}
}

func (b ToolUseBlock) String() string {
	return fmt.Sprintf("tool_use(%s:%s)", b.Name, b.ID)
}

// toLLMMessages flattens one block-based Message into the provider-facing
// llm.Message shape. Assistant messages may carry both text and tool_use
// blocks; those become Content + ToolCalls. A user message made entirely
// of tool_result blocks becomes one "tool" role llm.Message per result,
// since every existing provider client expects one tool-result entry per
// call. Plain user/assistant text passes through unchanged.
func toLLMMessages(m Message) []llm.Message {
	if m.IsToolResultMessage() {
		out := make([]llm.Message, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			tr := b.(ToolResultBlock)
			content := tr.Content
			out = append(out, llm.Message{Role: "tool", Content: content, ToolID: tr.ToolUseID})
		}
		return out
	}
	if len(m.Blocks) == 0 {
		return []llm.Message{{Role: m.Role, Content: m.Text}}
	}
	var text string
	var calls []llm.ToolCall
	var images []llm.GeneratedImage
	for _, b := range m.Blocks {
		switch v := b.(type) {
		case TextBlock:
			if text != "" {
				text += "\n"
			}
			text += v.Text
		case ToolUseBlock:
			calls = append(calls, llm.ToolCall{ID: v.ID, Name: v.Name, Args: v.Input})
		case ImageBlock:
			images = append(images, llm.GeneratedImage{Data: v.Data, MIMEType: v.MIMEType})
		}
	}
	return []llm.Message{{Role: m.Role, Content: text, ToolCalls: calls, Images: images}}
}

// fromLLMAssistant lifts a provider response back into the block model: one
// TextBlock (if any content) followed by one ToolUseBlock per tool call, in
// the order the provider returned them.
func fromLLMAssistant(msg llm.Message) Message {
	var blocks []Block
	if msg.Content != "" {
		blocks = append(blocks, TextBlock{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, ToolUseBlock{ID: tc.ID, Name: tc.Name, Input: tc.Args})
	}
	for _, img := range msg.Images {
		blocks = append(blocks, ImageBlock{Data: img.Data, MIMEType: img.MIMEType})
	}
	if len(blocks) == 0 {
		return Message{Role: "assistant"}
	}
	return Message{Role: "assistant", Blocks: blocks}
}

// flattenForProvider converts a whole working context into the flat
// llm.Message sequence the Provider interface expects.
func flattenForProvider(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toLLMMessages(m)...)
	}
	return out
}
