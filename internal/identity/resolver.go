package identity

import "strings"

// ResolverConfig names the directory groups that map to gatekeeper roles.
type ResolverConfig struct {
	ApproverGroup string
	AuditorGroup  string
	SupportGroup  string
	OpsGroup      string
	// ApplicationPrefix marks groups that carry application ownership, e.g.
	// "APP_" turns group "APP_BILLING" into membership "BILLING".
	ApplicationPrefix string
}

// Resolver turns raw group lists into roles and application memberships.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver constructs Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve derives the role and memberships from the supplied groups. Roles are
// checked from most to least privileged; callers in no role group are DEV.
func (r *Resolver) Resolve(groups []string) (Role, []string) {
	set := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g != "" {
			set[g] = struct{}{}
		}
	}
	role := RoleDev
	for _, candidate := range []struct {
		group string
		role  Role
	}{
		{r.cfg.ApproverGroup, RoleApprover},
		{r.cfg.AuditorGroup, RoleAuditor},
		{r.cfg.SupportGroup, RoleSupport},
		{r.cfg.OpsGroup, RoleOps},
	} {
		if candidate.group == "" {
			continue
		}
		if _, ok := set[strings.ToUpper(candidate.group)]; ok {
			role = candidate.role
			break
		}
	}

	prefix := strings.ToUpper(r.cfg.ApplicationPrefix)
	apps := make(map[string]struct{})
	for g := range set {
		if prefix == "" {
			apps[g] = struct{}{}
			continue
		}
		if app, ok := strings.CutPrefix(g, prefix); ok && app != "" {
			apps[app] = struct{}{}
		}
	}
	return role, sortedKeys(apps)
}
