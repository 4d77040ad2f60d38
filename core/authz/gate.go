package authz

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/session"
)

//go:embed model.conf
var modelContent string

//go:embed policy.csv
var defaultPolicy string

// Capability is a permission such as "shipments:edit".
type Capability string

const (
	CapDashboardView         Capability = "dashboard:view"
	CapShipmentsView         Capability = "shipments:view"
	CapShipmentsEdit         Capability = "shipments:edit"
	CapETAView               Capability = "eta:view"
	CapSettingsView          Capability = "settings:view"
	CapSettingsNotifications Capability = "settings:notifications"
	CapUsersManage           Capability = "users:manage"
)

// Option configures a Gate.
type Option func(*options)

type options struct {
	policy string
	logger *slog.Logger
}

// WithPolicy replaces the embedded policy. The text uses casbin CSV lines:
// "p, role, capability" and "g, role, inherited-role".
func WithPolicy(policy string) Option {
	return func(o *options) { o.policy = policy }
}

// WithLogger sets the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Gate resolves capabilities and keeps the set for the current session.
type Gate struct {
	enforcer *casbin.Enforcer
	logger   *slog.Logger
	current  atomic.Pointer[snapshot]
}

type snapshot struct {
	role string
	caps map[Capability]struct{}
}

// NewGate loads the policy and starts with an empty capability set.
func NewGate(opts ...Option) (*Gate, error) {
	o := &options{
		policy: defaultPolicy,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	m, err := model.NewModelFromString(modelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(o.policy))
	if err != nil {
		return nil, errors.Join(ErrInvalidPolicy, err)
	}

	g := &Gate{enforcer: enforcer, logger: o.logger}
	g.current.Store(&snapshot{caps: map[Capability]struct{}{}})
	return g, nil
}

// CapabilitiesFor returns the sorted capabilities granted to the session's
// role. An absent session has none.
func (g *Gate) CapabilitiesFor(sess *session.Session) []Capability {
	if sess == nil {
		return nil
	}
	return g.capabilitiesForRole(sess.Role())
}

func (g *Gate) capabilitiesForRole(role string) []Capability {
	perms, err := g.enforcer.GetImplicitPermissionsForUser(role)
	if err != nil {
		g.logger.Warn("resolving role capabilities failed",
			logger.Component("authz"),
			logger.Role(role),
			logger.Error(err),
		)
		return nil
	}

	caps := make([]Capability, 0, len(perms))
	for _, p := range perms {
		if len(p) < 2 {
			continue
		}
		caps = append(caps, Capability(p[1]))
	}
	slices.Sort(caps)
	return slices.Compact(caps)
}

// Recompute replaces the current capability set with the one for sess.
func (g *Gate) Recompute(sess *session.Session) {
	snap := &snapshot{caps: make(map[Capability]struct{})}
	if sess != nil {
		snap.role = sess.Role()
		for _, c := range g.capabilitiesForRole(snap.role) {
			snap.caps[c] = struct{}{}
		}
	}
	g.current.Store(snap)

	g.logger.Debug("capabilities recomputed",
		logger.Component("authz"),
		logger.Role(snap.role),
		logger.Count("capabilities", len(snap.caps)),
	)
}

// Role returns the role of the current session, or "" when signed out.
func (g *Gate) Role() string {
	return g.current.Load().role
}

// Allowed returns the current capability set, sorted.
func (g *Gate) Allowed() []Capability {
	snap := g.current.Load()
	caps := make([]Capability, 0, len(snap.caps))
	for c := range snap.caps {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	return caps
}

// Can reports whether the current set contains c. The empty capability is
// always granted.
func (g *Gate) Can(c Capability) bool {
	if c == "" {
		return true
	}
	_, ok := g.current.Load().caps[c]
	return ok
}

// Filter returns the items whose required capability is granted, in their
// original order.
func Filter[T any](g *Gate, items []T, required func(T) Capability) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if g.Can(required(item)) {
			out = append(out, item)
		}
	}
	return out
}
