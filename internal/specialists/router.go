package specialists

import (
	"regexp"
	"strings"

	"agentengine/internal/config"
)

// Route returns the name of the first specialist whose route matches text,
// checking substring matches before regex matches within each route, or ""
// if nothing matches. Used for pre-dispatch routing before the orchestrator
// LLM is ever called.
func Route(routes []config.SpecialistRoute, text string) string {
	if text == "" || len(routes) == 0 {
		return ""
	}
	lc := strings.ToLower(text)
	for _, r := range routes {
		for _, c := range r.Contains {
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" && strings.Contains(lc, c) {
				return r.Name
			}
		}
		for _, pat := range r.Regex {
			pat = strings.TrimSpace(pat)
			if pat == "" {
				continue
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				continue
			}
			if re.MatchString(text) {
				return r.Name
			}
		}
	}
	return ""
}
