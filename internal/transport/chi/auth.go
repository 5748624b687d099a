package chi

import (
	"net/http"
	"strings"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// keyParam lets URL templates of federating peers carry the API key, since
// a template cannot set headers.
const keyParam = "key"

// BearerAuthMiddleware returns a middleware that validates Bearer tokens or
// the key query parameter.
// If apiKeys is empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, msg := credentials(r)
			if msg != "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}
			if _, ok := validKeys[token]; !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// credentials extracts the presented key, or a message explaining why none
// could be read.
func credentials(r *http.Request) (string, string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if key := r.URL.Query().Get(keyParam); key != "" {
			return key, ""
		}
		return "", "missing authorization header"
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "", "authorization header must use Bearer scheme"
	}
	return auth[len(bearerPrefix):], ""
}
