// Package middleware holds the HTTP middleware the career advisor API adds on
// top of chi's stock set. CORS lets a separately hosted SPA (the dev server,
// or a frontend on its own domain) call the API with bearer tokens or the
// session cookie.
package middleware

import (
	"net/http"
	"strconv"
)

const (
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders  = "Content-Type, Authorization"
	exposeHeaders = "Content-Disposition"
	preflightAge  = 10 * 60
)

// originPolicy decides which origins may call the API. Credentials are only
// granted to origins listed by name, never through the "*" wildcard.
type originPolicy struct {
	any   bool
	named map[string]bool
}

func newOriginPolicy(allowedOrigins []string) originPolicy {
	p := originPolicy{named: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		if o == "*" {
			p.any = true
			continue
		}
		p.named[o] = true
	}
	return p
}

func (p originPolicy) allows(origin string) (allowed, credentials bool) {
	if origin == "" {
		return false, false
	}
	if p.named[origin] {
		return true, true
	}
	return p.any, false
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Preflights never reach next.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed, credentials := policy.allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
				if credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", allowMethods)
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					h.Set("Access-Control-Max-Age", strconv.Itoa(preflightAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
