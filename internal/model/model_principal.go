package model

// AdminGroup is the distinguished group granting administrative rights.
const AdminGroup = "admin"

// Principal is the caller identity derived from the request token. It is
// never persisted.
type Principal struct {
	UserId string
	Email  string
	Groups []string
	Admin  bool
	Scopes []string
}

// InGroup reports literal group membership. Admin short-cuts are the guard's
// business, not the principal's.
func (p Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// InAnyGroup reports whether the principal belongs to at least one of the
// given groups.
func (p Principal) InAnyGroup(groups []string) bool {
	for _, g := range groups {
		if p.InGroup(g) {
			return true
		}
	}
	return false
}

// HasScope reports whether the token carried the given scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
