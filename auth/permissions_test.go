package auth

import (
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPermissions(t *testing.T) {
	granted := NewClaims(jwt.RegisteredClaims{}, "get:drinks-detail", "patch:drinks")
	empty := NewClaims(jwt.RegisteredClaims{}, []string{}...)
	absent := NewClaims(jwt.RegisteredClaims{})

	tests := []struct {
		name       string
		permission string
		claims     *Claims
		wantErr    *AuthError
		wantStatus int
	}{
		{name: "granted", permission: "get:drinks-detail", claims: granted},
		{name: "second permission granted", permission: "patch:drinks", claims: granted},
		{name: "not granted", permission: "post:drinks", claims: granted, wantErr: ErrInvalidPermissions, wantStatus: http.StatusForbidden},
		{name: "empty set", permission: "post:drinks", claims: empty, wantErr: ErrInvalidPermissions, wantStatus: http.StatusForbidden},
		{name: "claim absent", permission: "post:drinks", claims: absent, wantErr: ErrPermissionsMissing, wantStatus: http.StatusBadRequest},
		{name: "nil claims", permission: "post:drinks", claims: nil, wantErr: ErrPermissionsMissing, wantStatus: http.StatusBadRequest},
		{name: "no permission required", permission: "", claims: empty},
		{name: "no permission required but claim absent", permission: "", claims: absent, wantErr: ErrPermissionsMissing, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPermissions(tt.permission, tt.claims)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			authErr, ok := AsAuthError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, authErr.StatusCode)
		})
	}
}

func TestCheckPermissions_Description(t *testing.T) {
	err := CheckPermissions("delete:drinks", NewClaims(jwt.RegisteredClaims{}, "get:drinks-detail"))
	authErr, ok := AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPermissions, authErr.Code)
	assert.Equal(t, `Payload permissions must include "delete:drinks".`, authErr.Description)

	// The sentinel itself is never modified.
	assert.Equal(t, "Permission not found.", ErrInvalidPermissions.Description)
}
