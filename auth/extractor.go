package auth

import (
	"net/http"
	"strings"
)

// AuthorizationHeader is the request header carrying the bearer credential.
const AuthorizationHeader = "Authorization"

// TokenFromRequest extracts the bearer token from r's Authorization header.
func TokenFromRequest(r *http.Request) (string, error) {
	return ExtractBearerToken(r.Header.Get(AuthorizationHeader))
}

// ExtractBearerToken validates the shape "Bearer <token>" and returns the token
// verbatim. The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingHeader
	}

	parts := strings.Fields(header)
	switch {
	case !strings.EqualFold(parts[0], "bearer"):
		return "", ErrMalformedHeader.WithDescription(`Authorization header must start with "Bearer".`)
	case len(parts) == 1:
		return "", ErrMalformedHeader.WithDescription("Token not found.")
	case len(parts) > 2:
		return "", ErrMalformedHeader
	}

	return parts[1], nil
}
