package auth

import "fmt"

// CheckPermissions enforces that claims grants permission. A token without a
// permissions claim is rejected even when permission is empty, since that
// points at an identity provider that is not configured to emit them.
func CheckPermissions(permission string, claims *Claims) error {
	if claims == nil || !claims.HasPermissionsClaim() {
		return ErrPermissionsMissing
	}
	if permission == "" {
		return nil
	}
	if !claims.HasPermission(permission) {
		return ErrInvalidPermissions.WithDescription(
			fmt.Sprintf("Payload permissions must include %q.", permission))
	}
	return nil
}
