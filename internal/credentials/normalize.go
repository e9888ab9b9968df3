package credentials

// AccessTokenFields lists, in priority order, the response fields an access
// token may be returned under.
var AccessTokenFields = []string{"accessToken", "AccessToken", "token", "Token", "jwt", "Jwt"}

// RoleFields lists, in priority order, the auth record fields a role may be
// stored under.
var RoleFields = []string{"role", "Role", "roleName", "RoleName", "userRole", "UserRole"}

// ExtractAccessToken returns the access token from a decoded JSON value.
func ExtractAccessToken(v any) (string, bool) {
	return firstString(v, AccessTokenFields)
}

// ExtractRole returns the role from a decoded auth record.
func ExtractRole(v any) (string, bool) {
	return firstString(v, RoleFields)
}

// firstString returns the first non-empty string field of a JSON object.
// Non-objects and non-string fields yield nothing.
func firstString(v any, fields []string) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range fields {
		if s, ok := obj[field].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
