package session

// ResolveRole extracts the role from raw token claims. It checks
// app_metadata.role, then user_metadata.role, then a top-level role claim,
// and falls back to DefaultRole.
func ResolveRole(claims map[string]any) string {
	for _, section := range []string{"app_metadata", "user_metadata"} {
		if meta, ok := claims[section].(map[string]any); ok {
			if role, ok := meta["role"].(string); ok && role != "" {
				return role
			}
		}
	}
	if role, ok := claims["role"].(string); ok && role != "" && role != "authenticated" {
		return role
	}
	return DefaultRole
}
