package prompt

import (
	_ "embed"
	"strings"
)

const DefaultTopK = 5

var (
	//go:embed template/assistant.txt
	assistantRaw string
)

// Assistant returns the system prompt template. It is formatted with
// FString variables dialect and top_k, see Vars.
func Assistant() string {
	return strings.TrimSpace(assistantRaw)
}

// Vars returns the template variables for the system prompt.
func Vars(dialect string, topK int) map[string]any {
	if strings.TrimSpace(dialect) == "" {
		dialect = "SQLite"
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return map[string]any{
		"dialect": dialect,
		"top_k":   topK,
	}
}
