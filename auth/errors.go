package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure point of the authorization pipeline.
type Kind string

const (
	KindMissingHeader      Kind = "MissingHeader"
	KindMalformedHeader    Kind = "MalformedHeader"
	KindInvalidHeader      Kind = "InvalidHeader"
	KindTokenExpired       Kind = "TokenExpired"
	KindInvalidClaims      Kind = "InvalidClaims"
	KindPermissionsMissing Kind = "PermissionsMissing"
	KindInvalidPermissions Kind = "InvalidPermissions"
	KindKeySetUnavailable  Kind = "KeySetUnavailable"
)

// Wire codes rendered in the response body. MalformedHeader and InvalidHeader
// share a code and differ only by status.
const (
	CodeHeaderMissing      = "authorization_header_missing"
	CodeInvalidHeader      = "invalid_header"
	CodeTokenExpired       = "token_expired"
	CodeInvalidClaims      = "invalid_claims"
	CodePermissionsMissing = "permissions_missing"
	CodeInvalidPermissions = "invalid_permissions"
	CodeKeySetUnavailable  = "key_set_unavailable"
)

// AuthError is the structured failure produced by any stage of the pipeline.
// Values are never mutated after construction; use WithDescription or wrap to
// derive a new one.
type AuthError struct {
	Kind        Kind
	Code        string
	Description string
	StatusCode  int
	Err         error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap implements errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same Kind, so errors.Is(err, ErrTokenExpired)
// holds regardless of description or cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsClientError reports whether the failure is attributable to the caller.
func (e *AuthError) IsClientError() bool {
	return e.StatusCode < http.StatusInternalServerError
}

// WithDescription returns a copy carrying a different description.
func (e *AuthError) WithDescription(description string) *AuthError {
	c := *e
	c.Description = description
	return &c
}

func (e *AuthError) wrap(err error) *AuthError {
	c := *e
	c.Err = err
	return &c
}

func newAuthError(kind Kind, code, description string, status int) *AuthError {
	return &AuthError{
		Kind:        kind,
		Code:        code,
		Description: description,
		StatusCode:  status,
	}
}

var (
	ErrMissingHeader = newAuthError(KindMissingHeader, CodeHeaderMissing,
		"Authorization header is expected.", http.StatusUnauthorized)

	ErrMalformedHeader = newAuthError(KindMalformedHeader, CodeInvalidHeader,
		"Authorization header must be bearer token.", http.StatusUnauthorized)

	ErrInvalidHeader = newAuthError(KindInvalidHeader, CodeInvalidHeader,
		"Invalid header. Unable to parse authentication token.", http.StatusBadRequest)

	ErrTokenExpired = newAuthError(KindTokenExpired, CodeTokenExpired,
		"Token has expired.", http.StatusUnauthorized)

	ErrInvalidClaims = newAuthError(KindInvalidClaims, CodeInvalidClaims,
		"Incorrect claims. Please check the audience and issuer.", http.StatusUnauthorized)

	ErrPermissionsMissing = newAuthError(KindPermissionsMissing, CodePermissionsMissing,
		"Permissions are expected in the token payload.", http.StatusBadRequest)

	ErrInvalidPermissions = newAuthError(KindInvalidPermissions, CodeInvalidPermissions,
		"Permission not found.", http.StatusForbidden)

	ErrKeySetUnavailable = newAuthError(KindKeySetUnavailable, CodeKeySetUnavailable,
		"Unable to retrieve signing keys.", http.StatusInternalServerError)
)

// AsAuthError extracts an *AuthError from err's chain.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
