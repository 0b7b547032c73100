package server

import (
	"net/http"
	"strings"

	"github.com/woxQAQ/wasm-analyzer/internal/config"
)

const (
	headerOpenerPolicy   = "Cross-Origin-Opener-Policy"
	headerEmbedderPolicy = "Cross-Origin-Embedder-Policy"
	headerResourcePolicy = "Cross-Origin-Resource-Policy"
)

// Isolation makes responses cross-origin isolated. Every response gets
// COOP same-origin and COEP require-corp; responses for paths ending in one
// of the configured suffixes also get the resource policy.
func Isolation(cfg config.IsolationConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		policy := cfg.ResourcePolicy
		if policy == "" {
			policy = "same-origin"
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set(headerOpenerPolicy, "same-origin")
			h.Set(headerEmbedderPolicy, "require-corp")
			for _, suffix := range cfg.ResourceSuffixes {
				if strings.HasSuffix(r.URL.Path, suffix) {
					h.Set(headerResourcePolicy, policy)
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
