package sources

import (
	"strconv"
	"strings"
)

// ConfigString returns the trimmed string value for key from def.Config or a fallback.
func ConfigString(def Definition, key, fallback string) string {
	if def.Config != nil {
		if raw, ok := def.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigInt returns the integer value for key from def.Config or a fallback.
func ConfigInt(def Definition, key string, fallback int) int {
	if def.Config == nil {
		return fallback
	}
	switch v := def.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCookieKey         = "cookie"
)

// Headers builds the common request headers from a source definition (skips empty values).
func Headers(def Definition) map[string]string {
	headers := make(map[string]string, 4)

	if v := ConfigString(def, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(def, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(def, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(def, ConfigCookieKey, ""); v != "" {
		headers["Cookie"] = v
	}

	return headers
}
