package auth

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of a verified access token.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions"`

	// hasPermissions records whether the token carried a permissions claim at
	// all; an empty array is distinct from an absent one.
	hasPermissions bool
}

// UnmarshalJSON decodes the registered claims and remembers whether the
// permissions claim was present. A JSON null, or a value that is not an array
// of strings, counts as absent.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var decoded struct {
		jwt.RegisteredClaims
		Permissions json.RawMessage `json:"permissions"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*c = Claims{RegisteredClaims: decoded.RegisteredClaims}

	raw := bytes.TrimSpace(decoded.Permissions)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var permissions []string
	if err := json.Unmarshal(raw, &permissions); err != nil {
		return nil
	}
	c.Permissions = permissions
	c.hasPermissions = true
	return nil
}

// HasPermissionsClaim reports whether the token carried a permissions claim.
func (c *Claims) HasPermissionsClaim() bool {
	return c.hasPermissions
}

// HasPermission reports whether permission is granted by the token.
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// NewClaims builds a claim set carrying the given permissions. It exists for
// callers that mint tokens (tests, local tooling); verified claims always come
// from Verifier.
func NewClaims(registered jwt.RegisteredClaims, permissions ...string) *Claims {
	return &Claims{
		RegisteredClaims: registered,
		Permissions:      permissions,
		hasPermissions:   permissions != nil,
	}
}
