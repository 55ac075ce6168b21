package service

import (
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// AccessRule declares which roles may enter a protected route. An empty role
// set admits any authenticated principal.
type AccessRule struct {
	AllowedRoles []domainauth.Role
}

// Allows reports whether the rule admits the role.
func (r AccessRule) Allows(role domainauth.Role) bool {
	if len(r.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// adminOnly reports whether the rule admits no role other than admin.
func (r AccessRule) adminOnly() bool {
	if len(r.AllowedRoles) == 0 {
		return false
	}
	for _, allowed := range r.AllowedRoles {
		if allowed != domainauth.RoleAdmin {
			return false
		}
	}
	return true
}

// GuardDecision is the outcome of a route-guard evaluation.
type GuardDecision int

const (
	// DecisionHold means render a loading state and re-evaluate on the next
	// session transition. Emitted while the session is initializing or the
	// role is unresolved; redirecting on first paint is exactly the bug the
	// hold state exists to prevent.
	DecisionHold GuardDecision = iota
	// DecisionAllow means render the page.
	DecisionAllow
	// DecisionRedirect means navigate to RedirectTo.
	DecisionRedirect
)

// String implements fmt.Stringer for log output.
func (d GuardDecision) String() string {
	switch d {
	case DecisionHold:
		return "hold"
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// GuardResult carries the decision and, for redirects, the target path.
type GuardResult struct {
	Decision   GuardDecision
	RedirectTo string
}

// RouteGuard decides allow/hold/redirect for a session against a route's
// access rule. Paths are configurable; zero values get sensible defaults.
type RouteGuard struct {
	LoginPath      string
	AdminLoginPath string
	UserHomePath   string
	AdminHomePath  string
}

// NewRouteGuard returns a guard with the default path set.
func NewRouteGuard() RouteGuard {
	return RouteGuard{
		LoginPath:      "/login",
		AdminLoginPath: "/admin/login",
		UserHomePath:   "/",
		AdminHomePath:  "/admin",
	}
}

// Evaluate applies the decision table:
//
//	no session            -> redirect to the role-appropriate login page
//	role unresolved       -> hold
//	role allowed          -> allow
//	role denied           -> redirect to that role's home
//
// Initializing always holds; no redirect may fire before restoration resolves.
func (g RouteGuard) Evaluate(sess domainauth.Session, rule AccessRule) GuardResult {
	switch sess.State {
	case domainauth.StateInitializing:
		return GuardResult{Decision: DecisionHold}

	case domainauth.StateNone:
		return GuardResult{Decision: DecisionRedirect, RedirectTo: g.loginFor(rule)}

	default:
		if !sess.RoleResolved {
			return GuardResult{Decision: DecisionHold}
		}
		if rule.Allows(sess.Principal.Role) {
			return GuardResult{Decision: DecisionAllow}
		}
		return GuardResult{Decision: DecisionRedirect, RedirectTo: g.homeFor(sess.Principal.Role)}
	}
}

func (g RouteGuard) loginFor(rule AccessRule) string {
	if rule.adminOnly() {
		return g.orDefault(g.AdminLoginPath, "/admin/login")
	}
	return g.orDefault(g.LoginPath, "/login")
}

func (g RouteGuard) homeFor(role domainauth.Role) string {
	if role == domainauth.RoleAdmin {
		return g.orDefault(g.AdminHomePath, "/admin")
	}
	return g.orDefault(g.UserHomePath, "/")
}

func (g RouteGuard) orDefault(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
