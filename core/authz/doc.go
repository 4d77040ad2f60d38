// Package authz derives capabilities from the session role and filters
// permission-tagged items such as navigation entries.
//
// Roles map to capabilities through a casbin RBAC policy. The embedded
// default grants viewers read access, operators editing on top of that, and
// admins user management on top of operators. WithPolicy replaces it.
//
// A Gate keeps the capability set of the current session. Register Recompute
// as a session listener so the set follows sign-in, refresh and sign-out:
//
//	gate, err := authz.NewGate()
//	store.OnChange(gate.Recompute)
//
//	visible := authz.Filter(gate, authz.DefaultNavigation(), authz.RequiredCapability)
package authz
