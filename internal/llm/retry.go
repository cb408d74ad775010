package llm

import "strings"

// retryableSubstrings mirrors the prior-language engine's exact classification
// list: any of these appearing (case-insensitively) in an error string marks
// it as a transient provider error the turn loop may retry.
var retryableSubstrings = []string{
	"connection",
	"timeout",
	"rate limit",
	"rate_limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
	"service unavailable",
	"service_unavailable",
	"server error",
	"internal error",
	"incomplete chunked read",
	"peer closed",
	"reset by peer",
	"broken pipe",
	"fetch failed",
}

// IsRetryable classifies an LLM call error per spec.md §4.1/§7.1.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
