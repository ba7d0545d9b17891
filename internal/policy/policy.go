package policy

import "strings"

// Subject is the identity a decision is made about, with whatever facts the
// caller resolved for it.
type Subject struct {
	ID         string
	Roles      []string
	Scopes     []string
	Attributes map[string]any
}

// Resource is the target of the requested action.
type Resource struct {
	ID         string
	Kind       string
	OwnerID    string
	Attributes map[string]any
}

// Env carries request-context facts (client address, time of day, and so on).
type Env map[string]any

// Policy is a pure predicate over (subject, resource, environment). Policies
// must be total: expected inputs never panic, and a policy that depends on a
// missing fact evaluates to false, not true. Absence of a grant is a denial.
type Policy func(sub Subject, res Resource, env Env) bool

// AnyRole grants when the subject holds at least one of the required roles.
func AnyRole(required ...string) Policy {
	set := normalizeSet(required)
	return func(sub Subject, _ Resource, _ Env) bool {
		if len(set) == 0 {
			return false
		}
		for _, role := range sub.Roles {
			if _, ok := set[normalize(role)]; ok {
				return true
			}
		}
		return false
	}
}

// AllScopes grants only when the subject's scope set is a superset of every
// required scope. Deliberately stricter than AnyRole: scopes gate individual
// operations.
func AllScopes(required ...string) Policy {
	set := normalizeSet(required)
	return func(sub Subject, _ Resource, _ Env) bool {
		if len(set) == 0 {
			return false
		}
		held := normalizeSet(sub.Scopes)
		for scope := range set {
			if _, ok := held[scope]; !ok {
				return false
			}
		}
		return true
	}
}

// AnyOf grants when at least one of the listed policies grants: a union of
// allow rules, not a consensus. With no policies it denies.
func AnyOf(policies ...Policy) Policy {
	return func(sub Subject, res Resource, env Env) bool {
		for _, p := range policies {
			if p != nil && p(sub, res, env) {
				return true
			}
		}
		return false
	}
}

// AllOf grants only when every listed policy grants. With no policies it
// denies: an empty conjunction is not an implicit grant.
func AllOf(policies ...Policy) Policy {
	return func(sub Subject, res Resource, env Env) bool {
		if len(policies) == 0 {
			return false
		}
		for _, p := range policies {
			if p == nil || !p(sub, res, env) {
				return false
			}
		}
		return true
	}
}

// Owner grants when the resource's owner is the subject. An unset owner
// evaluates false.
func Owner() Policy {
	return func(sub Subject, res Resource, _ Env) bool {
		if strings.TrimSpace(res.OwnerID) == "" || strings.TrimSpace(sub.ID) == "" {
			return false
		}
		return res.OwnerID == sub.ID
	}
}

// EnvEquals grants when the environment carries the key with exactly the
// given value. A missing key evaluates false.
func EnvEquals(key string, want any) Policy {
	return func(_ Subject, _ Resource, env Env) bool {
		if env == nil {
			return false
		}
		got, ok := env[key]
		if !ok {
			return false
		}
		return got == want
	}
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
