package core

import (
	"log/slog"
	"net/http"

	"docgen/internal/types"
)

// apiKeyHeader and apiKeyQueryParam are the two places a caller key may
// arrive. The header takes precedence.
const (
	apiKeyHeader     = "X-API-Key"
	apiKeyQueryParam = "apiKey"
)

// APIKeyMiddleware resolves the caller identity for every API request. It is
// mounted on the /v1 group only; /health carries no identity.
//
//  1. Extracts the API key from the X-API-Key header, falling back to the
//     apiKey query parameter.
//  2. Resolves the key to a plan tier via the KeyService.
//  3. Injects the Caller into the request context via types.WithCaller.
//
// This middleware never rejects: an absent or unrecognized key silently
// downgrades the request to the anonymous identity on the free plan.
// Enforcement happens downstream in the rate limiter and the usage meter,
// both of which key off the resolved Caller.
func (s *Server) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.URL.Query().Get(apiKeyQueryParam)
		}
		// Unknown keys pool into the anonymous identity so they share one
		// free-tier rate window instead of each minting their own.
		if key == "" || !s.Keys.IsValid(key) {
			key = types.AnonymousCaller
		}

		caller := types.Caller{
			Key:  key,
			Plan: s.Keys.ResolvePlan(key),
		}

		if caller.IsAnonymous() {
			s.Logger.Debug("request downgraded to anonymous caller",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}

		ctx := types.WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
