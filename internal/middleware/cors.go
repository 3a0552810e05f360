package middleware

import "net/http"

const (
	corsAllowHeaders = "Content-Type,Authorization"
	corsAllowMethods = "OPTIONS,GET,POST,PUT,DELETE"
)

// CORS answers cross-origin requests from the allowed origins only.
//
// Requests carry credentials (cookies), so the allowed origin is echoed back
// exactly and never replaced with "*". A request from any other origin gets
// no Access-Control-Allow-Origin header and the browser blocks the response.
// Preflight OPTIONS requests are answered here with 204 and never reach the
// router.
func CORS(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if _, ok := origins[origin]; ok && origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
