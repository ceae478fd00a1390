package auth

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantPresent bool
		wantPerms   []string
	}{
		{
			name:        "with permissions",
			payload:     `{"sub":"auth0|1","permissions":["get:drinks-detail","post:drinks"]}`,
			wantPresent: true,
			wantPerms:   []string{"get:drinks-detail", "post:drinks"},
		},
		{
			name:        "empty permissions",
			payload:     `{"sub":"auth0|1","permissions":[]}`,
			wantPresent: true,
			wantPerms:   []string{},
		},
		{
			name:        "absent permissions",
			payload:     `{"sub":"auth0|1"}`,
			wantPresent: false,
		},
		{
			name:        "null permissions",
			payload:     `{"sub":"auth0|1","permissions":null}`,
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claims Claims
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &claims))

			assert.Equal(t, "auth0|1", claims.Subject)
			assert.Equal(t, tt.wantPresent, claims.HasPermissionsClaim())
			if tt.wantPerms != nil {
				assert.Equal(t, tt.wantPerms, claims.Permissions)
			}
		})
	}
}

func TestClaims_UnmarshalJSON_WrongType(t *testing.T) {
	for _, payload := range []string{
		`{"sub":"auth0|1","permissions":"get:drinks"}`,
		`{"sub":"auth0|1","permissions":[1,2]}`,
		`{"sub":"auth0|1","permissions":{"get:drinks":true}}`,
	} {
		var claims Claims
		require.NoError(t, json.Unmarshal([]byte(payload), &claims), payload)

		assert.Equal(t, "auth0|1", claims.Subject)
		assert.False(t, claims.HasPermissionsClaim(), payload)
		assert.Nil(t, claims.Permissions)
		assert.ErrorIs(t, CheckPermissions("get:drinks", &claims), ErrPermissionsMissing)
	}
}

func TestClaims_UnmarshalJSON_BadRegisteredClaim(t *testing.T) {
	var claims Claims
	assert.Error(t, json.Unmarshal([]byte(`{"exp":"tomorrow"}`), &claims))
}

func TestClaims_HasPermission(t *testing.T) {
	claims := NewClaims(jwt.RegisteredClaims{Subject: "auth0|1"}, "get:drinks-detail")

	assert.True(t, claims.HasPermissionsClaim())
	assert.True(t, claims.HasPermission("get:drinks-detail"))
	assert.False(t, claims.HasPermission("post:drinks"))
	assert.False(t, claims.HasPermission("get:drinks"))
}

func TestNewClaims_WithoutPermissions(t *testing.T) {
	claims := NewClaims(jwt.RegisteredClaims{})
	assert.False(t, claims.HasPermissionsClaim())

	claims = NewClaims(jwt.RegisteredClaims{}, []string{}...)
	assert.True(t, claims.HasPermissionsClaim())
}
