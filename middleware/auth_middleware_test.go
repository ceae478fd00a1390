package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/coffee-shop/auth"
	"github.com/upb/coffee-shop/auth/authtest"
	"github.com/upb/coffee-shop/utils"
)

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

type recordingObserver struct {
	mu    sync.Mutex
	codes []string
}

func (o *recordingObserver) ObserveAuthFailure(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

func decodeAuthError(t *testing.T, w *httptest.ResponseRecorder) utils.AuthErrorResponse {
	t.Helper()
	var body utils.AuthErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestGuardWrap(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token with permission invokes operation with claims", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		guard := NewGuard(mockVerifier, logger, nil)

		claims := auth.NewClaims(jwt.RegisteredClaims{Subject: "auth0|barista"}, "get:drinks-detail")
		mockVerifier.On("Verify", mock.Anything, "valid-token").Return(claims, nil)

		called := false
		handler := guard.Wrap("get:drinks-detail", func(got *auth.Claims, w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Same(t, claims, got)
			w.WriteHeader(http.StatusTeapot)
		})

		req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, w.Code, "operation response passes through")
		mockVerifier.AssertExpectations(t)
	})

	t.Run("missing header returns 401 without verifying", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		observer := &recordingObserver{}
		guard := NewGuard(mockVerifier, logger, observer)

		handler := guard.Wrap("get:drinks-detail", func(*auth.Claims, http.ResponseWriter, *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		body := decodeAuthError(t, w)
		assert.False(t, body.Success)
		assert.Equal(t, auth.CodeHeaderMissing, body.Code)
		assert.Equal(t, []string{auth.CodeHeaderMissing}, observer.codes)
		mockVerifier.AssertNotCalled(t, "Verify")
	})

	t.Run("malformed header returns 401 without verifying", func(t *testing.T) {
		headers := []string{"Basic abc", "Bearer", "Bearer a b", "token"}
		for _, header := range headers {
			mockVerifier := new(MockTokenVerifier)
			guard := NewGuard(mockVerifier, logger, nil)

			handler := guard.Wrap("post:drinks", func(*auth.Claims, http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodPost, "/drinks", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code, header)
			assert.Equal(t, auth.CodeInvalidHeader, decodeAuthError(t, w).Code, header)
			mockVerifier.AssertNotCalled(t, "Verify")
		}
	})

	t.Run("verifier failure is rendered with its status", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{auth.ErrTokenExpired, http.StatusUnauthorized, auth.CodeTokenExpired},
			{auth.ErrInvalidClaims, http.StatusUnauthorized, auth.CodeInvalidClaims},
			{auth.ErrInvalidHeader, http.StatusBadRequest, auth.CodeInvalidHeader},
			{auth.ErrKeySetUnavailable, http.StatusInternalServerError, auth.CodeKeySetUnavailable},
		}

		for _, tt := range tests {
			mockVerifier := new(MockTokenVerifier)
			guard := NewGuard(mockVerifier, logger, nil)
			mockVerifier.On("Verify", mock.Anything, "token").Return(nil, tt.err)

			handler := guard.Wrap("get:drinks-detail", func(*auth.Claims, http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, tt.code)
			assert.Equal(t, tt.code, decodeAuthError(t, w).Code)
		}
	})

	t.Run("non-auth verifier error maps to invalid header", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		guard := NewGuard(mockVerifier, logger, nil)
		mockVerifier.On("Verify", mock.Anything, "token").Return(nil, errors.New("boom"))

		handler := guard.Wrap("get:drinks-detail", func(*auth.Claims, http.ResponseWriter, *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing permissions claim returns 400", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		guard := NewGuard(mockVerifier, logger, nil)
		mockVerifier.On("Verify", mock.Anything, "token").
			Return(auth.NewClaims(jwt.RegisteredClaims{Subject: "auth0|1"}), nil)

		handler := guard.Wrap("get:drinks-detail", func(*auth.Claims, http.ResponseWriter, *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auth.CodePermissionsMissing, decodeAuthError(t, w).Code)
	})

	t.Run("insufficient permission returns 403", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		observer := &recordingObserver{}
		guard := NewGuard(mockVerifier, logger, observer)
		mockVerifier.On("Verify", mock.Anything, "token").
			Return(auth.NewClaims(jwt.RegisteredClaims{}, "get:drinks-detail"), nil)

		handler := guard.Wrap("delete:drinks", func(*auth.Claims, http.ResponseWriter, *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest(http.MethodDelete, "/drinks/1", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decodeAuthError(t, w)
		assert.Equal(t, auth.CodeInvalidPermissions, body.Code)
		assert.Contains(t, body.Description, "delete:drinks")
		assert.Equal(t, []string{auth.CodeInvalidPermissions}, observer.codes)
	})
}

func TestGuardRequire(t *testing.T) {
	logger := zap.NewNop()

	t.Run("claims are stored in context", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		guard := NewGuard(mockVerifier, logger, nil)

		claims := auth.NewClaims(jwt.RegisteredClaims{Subject: "auth0|manager"}, "patch:drinks")
		mockVerifier.On("Verify", mock.Anything, "valid-token").Return(claims, nil)

		handler := guard.Require("patch:drinks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			extractedClaims := GetClaimsFromContext(r.Context())
			require.NotNil(t, extractedClaims)
			assert.Equal(t, "auth0|manager", extractedClaims.Subject)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPatch, "/drinks/1", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("failure stops the chain", func(t *testing.T) {
		guard := NewGuard(new(MockTokenVerifier), logger, nil)

		handler := guard.Require("patch:drinks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPatch, "/drinks/1", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// End-to-end through a real verifier and key set served over HTTP.
func TestGuard_EndToEnd(t *testing.T) {
	key := authtest.NewKey(t, "kid-1")
	server := authtest.NewServer(t, key)

	keys := auth.NewKeySetCache(auth.KeySetConfig{
		JWKSURL:  server.URL,
		CacheTTL: time.Hour,
	}, zap.NewNop())
	verifier := auth.NewVerifier(keys, auth.VerifierConfig{
		Domain:   authtest.Domain,
		Audience: authtest.Audience,
	}, zap.NewNop())
	guard := NewGuard(verifier, zap.NewNop(), nil)

	run := func(permission, header string) (*httptest.ResponseRecorder, *auth.Claims) {
		var got *auth.Claims
		handler := guard.Wrap(permission, func(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
			got = claims
			_ = utils.WriteOK(w, utils.Envelope{"drinks": []string{}})
		})
		req := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w, got
	}

	t.Run("valid token with required permission", func(t *testing.T) {
		token := key.Sign(t, authtest.Claims("get:drinks-detail"))

		w, claims := run("get:drinks-detail", "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, claims)
		assert.Equal(t, []string{"get:drinks-detail"}, claims.Permissions)
		assert.Equal(t, "auth0|barista", claims.Subject)
	})

	t.Run("same token without the required permission", func(t *testing.T) {
		token := key.Sign(t, authtest.Claims("get:drinks-detail"))

		w, claims := run("post:drinks", "Bearer "+token)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Nil(t, claims)
		assert.Equal(t, auth.CodeInvalidPermissions, decodeAuthError(t, w).Code)
	})

	t.Run("token without permissions claim", func(t *testing.T) {
		claims := authtest.Claims()
		delete(claims, "permissions")

		w, got := run("get:drinks-detail", "Bearer "+key.Sign(t, claims))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, got)
		assert.Equal(t, auth.CodePermissionsMissing, decodeAuthError(t, w).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := authtest.Claims("get:drinks-detail")
		claims["exp"] = time.Now().Add(-time.Hour).Unix()

		w, got := run("get:drinks-detail", "Bearer "+key.Sign(t, claims))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, got)
		assert.Equal(t, auth.CodeTokenExpired, decodeAuthError(t, w).Code)
	})

	t.Run("unknown signing key", func(t *testing.T) {
		stranger := authtest.NewKey(t, "kid-stranger")

		w, got := run("get:drinks-detail", "Bearer "+stranger.Sign(t, authtest.Claims("get:drinks-detail")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, got)
		assert.Equal(t, auth.CodeInvalidHeader, decodeAuthError(t, w).Code)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		token := key.Sign(t, authtest.Claims("get:drinks-detail"))

		w, _ := run("get:drinks-detail", "bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no header", func(t *testing.T) {
		w, got := run("get:drinks-detail", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, got)
	})
}
