package access

import (
	"fmt"
	"sort"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

// rbacModel grants capabilities to roles; g lets a role inherit another role.
const rbacModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// defaultGrants is the built-in role policy.
var defaultGrants = map[string][]Capability{
	"subscriber":  {ViewPublic},
	"contributor": {ViewPublic, ViewPrivate},
	"author":      {ViewPublic, ViewPrivate, EditEntryModerated},
	"editor":      {ViewPublic, ViewPrivate, ViewUnlisted, EditEntry, EditEntryModerated},
}

// defaultInheritance lists role -> parent role.
var defaultInheritance = [][2]string{
	{"administrator", "editor"},
}

// Enforcer resolves role names into capability sets.
type Enforcer struct {
	e *casbin.Enforcer
}

// NewEnforcer builds the role policy. overrides replaces the grants of the
// named roles (and adds new roles); other roles keep the built-in policy.
func NewEnforcer(overrides map[string][]string) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load access model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	grants := map[string][]string{}
	for role, caps := range defaultGrants {
		grants[role] = Strings(caps)
	}
	for role, caps := range overrides {
		grants[role] = caps
	}

	// Sorted so policy load order does not depend on map iteration
	roles := make([]string, 0, len(grants))
	for role := range grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		for _, c := range grants[role] {
			if _, err := e.AddPolicy(role, c); err != nil {
				return nil, fmt.Errorf("grant %s to %s: %w", c, role, err)
			}
		}
	}
	for _, pair := range defaultInheritance {
		if _, ok := overrides[pair[0]]; ok {
			continue
		}
		if _, err := e.AddGroupingPolicy(pair[0], pair[1]); err != nil {
			return nil, fmt.Errorf("inherit %s from %s: %w", pair[0], pair[1], err)
		}
	}

	return &Enforcer{e: e}, nil
}

// Capabilities returns the union of capabilities granted to roles.
func (en *Enforcer) Capabilities(roles []string) (map[Capability]bool, error) {
	caps := map[Capability]bool{}
	for _, role := range roles {
		for _, c := range Capabilities {
			if caps[c] {
				continue
			}
			ok, err := en.e.Enforce(role, string(c))
			if err != nil {
				return nil, err
			}
			if ok {
				caps[c] = true
			}
		}
	}
	return caps, nil
}
