package access

import (
	"strings"

	"mystore/internal/platform/models"
)

const (
	AbilityManageTenantUsers   = "manage-tenant-users"
	AbilityManagePlatformUsers = "manage-platform-users"
)

var tenantManagerRoles = []string{RoleTenantOwner, RoleTenantAdmin}

type Gate struct {
	resolver *Resolver
}

func NewGate(resolver *Resolver) *Gate {
	return &Gate{resolver: resolver}
}

func (g *Gate) Resolver() *Resolver {
	return g.resolver
}

// IsSuperAdmin reports whether user carries the global bypass role.
func (g *Gate) IsSuperAdmin(user *models.User) bool {
	code, ok := g.resolver.Resolve(user)
	return ok && code == RolePlatformSuperAdmin
}

// HasRoleForTenant decides whether user may act on tenantID with one of the
// allowed roles. With useHierarchy the user's level must reach the lowest
// level among the allowed roles; unknown allowed roles never lower that bar.
func (g *Gate) HasRoleForTenant(user *models.User, tenantID int64, allowed []string, useHierarchy bool) bool {
	code, ok := g.resolver.Resolve(user)
	if !ok {
		return false
	}

	if code == RolePlatformSuperAdmin {
		return true
	}

	if user.TenantID == nil || *user.TenantID != tenantID {
		return false
	}

	if !useHierarchy {
		for _, role := range allowed {
			if strings.EqualFold(strings.TrimSpace(role), code) {
				return true
			}
		}
		return false
	}

	threshold := MaxRequiredLevel
	for _, role := range allowed {
		level, known := Level(role)
		if !known {
			level = MaxRequiredLevel
		}
		if level < threshold {
			threshold = level
		}
	}

	have, _ := Level(code)
	return have >= threshold
}

// Allows evaluates a named ability. For manage-tenant-users a nil tenantID
// means the user's own tenant.
func (g *Gate) Allows(user *models.User, ability string, tenantID *int64) bool {
	switch ability {
	case AbilityManagePlatformUsers:
		return g.IsSuperAdmin(user)
	case AbilityManageTenantUsers:
		if g.IsSuperAdmin(user) {
			return true
		}
		target := tenantID
		if target == nil {
			if user == nil || user.TenantID == nil {
				return false
			}
			target = user.TenantID
		}
		return g.HasRoleForTenant(user, *target, tenantManagerRoles, true)
	default:
		return false
	}
}
