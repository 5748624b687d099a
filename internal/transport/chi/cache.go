package chi

import (
	"net/http"
	"strconv"
	"time"
)

// CacheHeaders sets Date and, when maxAge is positive, Cache-Control on every
// response.
func CacheHeaders(maxAge time.Duration) func(http.Handler) http.Handler {
	control := ""
	if secs := int(maxAge / time.Second); secs > 0 {
		control = "max-age=" + strconv.Itoa(secs)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
			if control != "" {
				w.Header().Set("Cache-Control", control)
			}
			next.ServeHTTP(w, r)
		})
	}
}
