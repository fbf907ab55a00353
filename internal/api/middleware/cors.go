package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"mystore/internal/platform/config"
)

// CORS applies the configured origin allow-list and answers preflight requests.
// Credentials are only allowed for an explicit list of origins, never with "*".
func CORS(cfg config.CORSConfig, next http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
		}
		origins = append(origins, origin)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		MaxAge:           cfg.MaxAge,
		AllowCredentials: !wildcard,
	}).Handler(next)
}
