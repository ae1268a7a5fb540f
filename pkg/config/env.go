package config

import "strings"

// envKeyToPath converts an NLAPI_-stripped environment key like
// "LLM_MAX_CONCURRENCY" into the koanf dot path "llm.max_concurrency".
func envKeyToPath(key string) string {
	key = strings.ToLower(key)
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
