package prompts

// The three summarization prompts the compressor uses. Exact wording is not
// contractual; the section structure (tag names, section headers,
// instruction directives) is, so that a reader of a produced summary can
// always find the same landmarks regardless of which LLM wrote it.

// InitialSummary is the system prompt for a first-time compression: the
// transcript of everything being dropped from the working context is the
// user message that follows it.
const InitialSummary = `Your task is to create a detailed summary of the conversation so far, paying close attention to the user's explicit requests and your previous actions.
This summary should be thorough in capturing technical details, code patterns, and architectural decisions that would be essential for continuing development work without losing context.

Before providing your final summary, wrap your analysis in <analysis> tags to organize your thoughts, then structure your summary using this exact format:

<summary>
1. Primary Request and Intent:
   [Capture all of the user's explicit requests and intents in detail]

2. Key Technical Concepts:
   [List all important technical concepts, technologies, and frameworks discussed]

3. Files and Code Sections:
   [Enumerate specific files and code sections examined, modified, or created]

4. Problem Solving:
   [Document problems solved and any ongoing troubleshooting efforts]

5. All User Messages:
   [List ALL user messages that are not tool results, numbered, verbatim. This is critical for tracking the trajectory of the request.]

6. Current State:
   [Describe precisely what was being worked on immediately before this summary was requested]

7. Pending Tasks:
   [Outline any pending tasks explicitly requested]
{file_tracking_section}
</summary>`

// SummaryUpdate is the system prompt for iterative compression: it embeds
// the previous summary verbatim and asks for an append, not a rewrite.
const SummaryUpdate = `This conversation is being continued and has already been summarized once. Below is the existing summary, followed by new conversation turns that occurred since.

Your task is to produce an UPDATED summary that:
- Preserves every section and every fact from the existing summary below, unchanged
- Appends new progress, technical concepts, and files touched since the existing summary
- Updates the "Current State" and "Pending Tasks" sections to reflect the latest state
- Appends new entries to "All User Messages" (never renumber or drop earlier ones)
- Uses the exact same section structure as the existing summary

Existing summary:
{previous_summary}
{file_tracking_section}

Produce the full updated <summary>...</summary> block.`

// TurnPrefixSummary summarizes the dropped prefix of a single oversized
// turn (compressor step 7, when even one logical turn does not fit the
// recent-turns budget).
const TurnPrefixSummary = `The message list below is the early portion of one oversized conversation turn that must be dropped to fit the context window; a suffix of the same turn is being kept verbatim after this summary.

Summarize only this prefix using exactly these sections:

Original Request: [what the user originally asked for in this turn]
Early Progress: [what was explored/attempted/established in this prefix]
Context for Suffix: [anything the kept suffix will need to make sense without the dropped prefix]`
