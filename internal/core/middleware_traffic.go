package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"docgen/internal/ratelimit"
	"docgen/internal/types"
)

// rateLimitRetryAfter is the retry hint reported to rate-limited callers,
// matching the fixed window length in seconds.
const rateLimitRetryAfter = 60

// RateLimit enforces the per-caller fixed-window request limit.
//
// The middleware extracts the Caller from the request context (set by
// APIKeyMiddleware), derives the per-minute ceiling from the caller's plan,
// and calls Store.Admit to atomically count the request against the window.
//
// If no RateLimitStore is configured (e.g., during tests), the middleware
// passes through without rate limiting.
//
// On every request (allowed or not), the middleware sets standard rate limit
// response headers:
//   - X-RateLimit-Limit: The maximum number of requests in the window.
//   - X-RateLimit-Remaining: The number of requests remaining.
//   - X-RateLimit-Reset: Unix timestamp of the next whole-minute boundary.
//
// When rate limited, the middleware also sets Retry-After and returns the
// JSON body {error, message, retryAfter}.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If no rate limit store is configured, pass through.
		if s.RateLimitStore == nil {
			next.ServeHTTP(w, r)
			return
		}

		// APIKeyMiddleware always sets a Caller; an absent one means the
		// middleware chain was assembled without it, so resolve anonymously.
		caller, ok := types.GetCaller(r.Context())
		if !ok {
			caller = types.Caller{Key: types.AnonymousCaller, Plan: types.PlanFree}
		}

		limit := s.Plans.GetLimits(caller.Plan).RequestsPerMinute

		result, err := s.RateLimitStore.Admit(r.Context(), caller.Key, limit)
		if err != nil {
			// On store errors, fail open: allow the request through but log
			// the error. This prevents a rate limit store outage from
			// blocking all API traffic.
			s.Logger.Error("rate limit store error",
				slog.String("caller", caller.Key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		// Set rate limit headers on every response (allowed or denied).
		setRateLimitHeaders(w, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("caller", caller.Key),
				slog.String("plan", string(caller.Plan)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			w.Header().Set("Retry-After", strconv.Itoa(rateLimitRetryAfter))
			JSON(w, r, http.StatusTooManyRequests, RateLimitedResponse{
				Error:      "Rate limit exceeded",
				Message:    fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", limit),
				RetryAfter: rateLimitRetryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
