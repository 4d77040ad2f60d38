// Package identity implements session.IdentityProvider over an OAuth2 token
// source.
//
// Access tokens are JWTs. Their claims are read without signature checks by
// default, which is enough for a client that only needs the subject and role
// to drive caching and navigation; the server enforces access. When an
// OIDC verifier is configured the token is verified first.
//
// The role is resolved from app_metadata.role, user_metadata.role or role,
// in that order, and defaults to viewer.
//
//	p, err := identity.NewFromConfig(ctx, cfg, identity.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	go p.Run(ctx) // refreshes the token before it expires
//
// Run pushes the refreshed session to OnSessionChange listeners. A refresh
// rejected by the token endpoint signs the user out.
package identity
