package middleware

import (
	"context"
	"net/http"

	"github.com/upb/coffee-shop/auth"
	"github.com/upb/coffee-shop/utils"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify validates a token and returns its claims
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// FailureObserver is notified of every rejected request.
type FailureObserver interface {
	ObserveAuthFailure(code string)
}

// ProtectedHandlerFunc is an operation that runs only once the guard has
// verified the caller. It receives the verified claims.
type ProtectedHandlerFunc func(claims *auth.Claims, w http.ResponseWriter, r *http.Request)

// Guard runs the authorization pipeline in front of protected operations:
// extract the bearer token, verify it, then enforce the required permission.
type Guard struct {
	verifier TokenVerifier
	observer FailureObserver
	logger   *zap.Logger
}

// NewGuard creates a new Guard. observer may be nil.
func NewGuard(verifier TokenVerifier, logger *zap.Logger, observer FailureObserver) *Guard {
	return &Guard{
		verifier: verifier,
		observer: observer,
		logger:   logger,
	}
}

// Authorize runs the pipeline for r and returns the verified claims. Any error
// is an *auth.AuthError; later stages never run once one fails.
func (g *Guard) Authorize(r *http.Request, permission string) (*auth.Claims, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, err
	}

	claims, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		if _, ok := auth.AsAuthError(err); !ok {
			return nil, auth.ErrInvalidHeader.WithDescription(err.Error())
		}
		return nil, err
	}

	if err := auth.CheckPermissions(permission, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// Wrap guards next with permission. next is invoked with the verified claims
// and its response is passed through untouched; on failure the authorization
// error is rendered and next never runs.
func (g *Guard) Wrap(permission string, next ProtectedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Authorize(r, permission)
		if err != nil {
			g.reject(w, r, permission, err)
			return
		}

		g.logger.Debug("authorization successful",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("sub", claims.Subject),
			zap.String("permission", permission))

		next(claims, w, r)
	}
}

// Require is the chi middleware form of Wrap. Verified claims are stored in the
// request context; see GetClaimsFromContext.
func (g *Guard) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Wrap(permission, func(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, permission string, err error) {
	authErr, ok := auth.AsAuthError(err)
	if !ok {
		authErr = auth.ErrInvalidHeader.WithDescription(err.Error())
	}

	fields := []zap.Field{
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("permission", permission),
		zap.String("code", authErr.Code),
		zap.Int("status", authErr.StatusCode),
		zap.Error(err),
	}
	if authErr.IsClientError() {
		g.logger.Warn("authorization failed", fields...)
	} else {
		g.logger.Error("authorization failed", fields...)
	}

	if g.observer != nil {
		g.observer.ObserveAuthFailure(authErr.Code)
	}

	_ = utils.WriteAuthError(w, authErr)
}
