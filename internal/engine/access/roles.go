package access

import (
	"math"
	"strconv"
	"strings"

	"mystore/internal/platform/models"
)

const (
	RoleTenantViewer       = "tenant_viewer"
	RoleTenantEditor       = "tenant_editor"
	RoleTenantAdmin        = "tenant_admin"
	RoleTenantOwner        = "tenant_owner"
	RolePlatformSuperAdmin = "platform_super_admin"
)

// MaxRequiredLevel is the level of a required role nobody can reach.
const MaxRequiredLevel = math.MaxInt

var hierarchy = map[string]int{
	RoleTenantViewer:       10,
	RoleTenantEditor:       20,
	RoleTenantAdmin:        30,
	RoleTenantOwner:        40,
	RolePlatformSuperAdmin: 100,
}

// Level returns the privilege level of code and whether the code is known.
func Level(code string) (int, bool) {
	level, ok := hierarchy[strings.ToLower(strings.TrimSpace(code))]
	return level, ok
}

// CanGrant reports whether a holder of actor may hand granted to someone else.
// Only a platform super admin may grant platform_super_admin; everyone else is
// capped at their own level.
func CanGrant(actor, granted string) bool {
	actor = strings.ToLower(strings.TrimSpace(actor))
	granted = strings.ToLower(strings.TrimSpace(granted))
	if actor == RolePlatformSuperAdmin {
		return true
	}
	if granted == RolePlatformSuperAdmin {
		return false
	}
	actorLevel, ok := Level(actor)
	if !ok {
		return false
	}
	grantedLevel, ok := Level(granted)
	return ok && grantedLevel <= actorLevel
}

// CodeOf returns the code of a loaded role relation, or "" when role is nil or unnamed.
func CodeOf(role *models.Role) string {
	code, _ := RelationSource{}.RoleCode(&models.User{Role: role})
	return code
}

// RoleSource yields a user's role code from one place.
type RoleSource interface {
	RoleCode(user *models.User) (string, bool)
}

// RelationSource reads the role relation loaded with the user: slug, then code, then name.
type RelationSource struct{}

func (RelationSource) RoleCode(user *models.User) (string, bool) {
	if user == nil || user.Role == nil {
		return "", false
	}
	for _, candidate := range []string{user.Role.Slug, user.Role.Code, user.Role.Name} {
		if code := strings.ToLower(strings.TrimSpace(candidate)); code != "" {
			return code, true
		}
	}
	return "", false
}

// ConfigMapSource resolves user.RoleID through the static roles.role_map table.
type ConfigMapSource struct {
	slugs map[int64]string
}

// NewConfigMapSource builds the source from the configured id→slug table.
// Keys that are not decimal ids are ignored.
func NewConfigMapSource(roleMap map[string]string) ConfigMapSource {
	slugs := make(map[int64]string, len(roleMap))
	for key, slug := range roleMap {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		slug = strings.ToLower(strings.TrimSpace(slug))
		if slug != "" {
			slugs[id] = slug
		}
	}
	return ConfigMapSource{slugs: slugs}
}

func (s ConfigMapSource) RoleCode(user *models.User) (string, bool) {
	if user == nil || user.RoleID == nil {
		return "", false
	}
	code, ok := s.slugs[*user.RoleID]
	return code, ok
}

// Resolver asks each source in order; the first answer wins.
type Resolver struct {
	sources []RoleSource
}

func NewResolver(sources ...RoleSource) *Resolver {
	return &Resolver{sources: sources}
}

// NewDefaultResolver prefers the loaded relation and falls back to the role map.
func NewDefaultResolver(roleMap map[string]string) *Resolver {
	return NewResolver(RelationSource{}, NewConfigMapSource(roleMap))
}

// Resolve returns the effective role code. A missing role is not an error;
// callers authorize nothing in that case.
func (r *Resolver) Resolve(user *models.User) (string, bool) {
	for _, src := range r.sources {
		if code, ok := src.RoleCode(user); ok {
			return code, true
		}
	}
	return "", false
}
