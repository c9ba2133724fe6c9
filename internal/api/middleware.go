package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/metrics"
	"github.com/talentpool/herald/internal/redis"
)

// Identity is the authenticated caller of a request: either an account or
// an organization, resolved by the platform gateway before the request
// reaches this service. It is used uniformly as the recipient on every
// endpoint.
type Identity struct {
	ID   uuid.UUID
	Kind string
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// IdentityMiddleware extracts the caller identity forwarded by the
// gateway in X-Recipient-Id / X-Recipient-Kind. Credential validation
// happens upstream; this service trusts the headers it is handed.
func IdentityMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get("X-Recipient-Id")
			kind := r.Header.Get("X-Recipient-Kind")

			if rawID == "" || (kind != db.KindAccount && kind != db.KindOrganization) {
				writeJSON(w, http.StatusUnauthorized, errorBody{
					Success: false,
					Message: "Authentication required",
				})
				return
			}

			id, err := uuid.Parse(rawID)
			if err != nil {
				logger.Warn("malformed identity header", zap.String("recipient_id", rawID))
				writeJSON(w, http.StatusUnauthorized, errorBody{
					Success: false,
					Message: "Authentication required",
				})
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, Identity{ID: id, Kind: kind})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware enforces a per-recipient rate limit. With no
// limiter configured it passes everything through.
func RateLimitMiddleware(limiter *redis.RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), "recipient:"+identity.ID.String())
			if err != nil {
				logger.Warn("rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				metrics.RecordRateLimitRejection()
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Success: false,
					Message: "Too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
