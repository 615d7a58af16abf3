package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// AllowedOrigins returns a checkOrigin function accepting the listed origins.
// Origins are compared as lower-cased scheme://host. A "*" entry allows every
// origin; invalid entries are ignored. Requests without an Origin header are
// rejected unless all origins are allowed.
func AllowedOrigins(origins []string) CheckOriginFn {
	normalized, allowAll := normalizeOrigins(origins)
	if allowAll {
		return AllOrigins()
	}

	allowed := make(map[string]struct{}, len(normalized))
	for _, origin := range normalized {
		allowed[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin, ok := normalizeOrigin(r.Header.Get("Origin"))
		if !ok {
			return false
		}
		_, exists := allowed[origin]
		return exists
	}
}

func normalizeOrigins(origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			continue
		}
		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
