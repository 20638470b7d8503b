package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"vidfetch/internal/config"
)

const (
	wildcard          = "*"
	corsPreflightAge  = 600
	corsExposeHeaders = "Content-Disposition, " + HeaderXRequestID
)

// CORS applies the configured cross-origin policy and answers preflight requests.
// Requests from origins outside the policy are served without CORS headers.
func CORS(cfg config.CORS) func(http.Handler) http.Handler {
	allowAnyOrigin := slices.Contains(cfg.AllowedOrigins, wildcard)
	allowAnyMethod := slices.Contains(cfg.AllowedMethods, wildcard)
	allowAnyHeader := slices.Contains(cfg.AllowedHeaders, wildcard)

	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		origins[origin] = true
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)

				return
			}

			allowed := allowAnyOrigin || origins[origin]
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")

			if !allowed {
				if preflight {
					http.Error(w, "CORS origin not allowed", http.StatusForbidden)

					return
				}

				next.ServeHTTP(w, r)

				return
			}

			// browsers reject "*" together with credentials, so the origin is reflected instead
			if allowAnyOrigin && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", wildcard)
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				next.ServeHTTP(w, r)

				return
			}

			if allowAnyMethod {
				h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
			} else {
				h.Set("Access-Control-Allow-Methods", methods)
			}

			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); allowAnyHeader && reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else if !allowAnyHeader && headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Max-Age", strconv.Itoa(corsPreflightAge))

			w.WriteHeader(http.StatusNoContent)
		})
	}
}
