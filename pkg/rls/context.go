package rls

// UserSecurityContext describes the requesting user for one evaluation.
// It is built and owned by the authentication collaborator; the engine
// only reads it.
type UserSecurityContext struct {
	// UserID is the unique user identifier.
	UserID string `json:"userId"`

	// Username is the login name.
	Username string `json:"username"`

	// Email is the user's email address, if known.
	Email string `json:"email,omitempty"`

	// RoleIDs is the set of role IDs the user currently holds.
	RoleIDs []string `json:"roleIds"`

	// Attributes is an open attribute map used by dynamic conditions
	// (e.g. "department", "region", or any custom key).
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// HasRole returns true if the user holds the given role.
func (u *UserSecurityContext) HasRole(roleID string) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the user holds at least one of the given roles.
func (u *UserSecurityContext) HasAnyRole(roleIDs []string) bool {
	for _, id := range roleIDs {
		if u.HasRole(id) {
			return true
		}
	}
	return false
}

// Attribute looks up an attribute by key. The second return value reports
// whether the attribute is present in the context.
func (u *UserSecurityContext) Attribute(key string) (interface{}, bool) {
	if u.Attributes == nil {
		return nil, false
	}
	value, ok := u.Attributes[key]
	return value, ok
}
