package authz

// NavigationItem is a console navigation entry.
type NavigationItem struct {
	ID       string
	Title    string
	Href     string
	Requires Capability
}

// RequiredCapability is the accessor Filter uses for navigation items.
func RequiredCapability(item NavigationItem) Capability {
	return item.Requires
}

// DefaultNavigation returns the console's top-level navigation.
func DefaultNavigation() []NavigationItem {
	return []NavigationItem{
		{ID: "dashboard", Title: "Dashboard", Href: "/dashboard"},
		{ID: "shipments", Title: "Shipments", Href: "/shipments"},
		{ID: "eta", Title: "ETA", Href: "/eta"},
		{ID: "settings", Title: "Settings", Href: "/settings"},
		{ID: "users", Title: "Users", Href: "/users", Requires: CapUsersManage},
	}
}
