package rls

// SecurityRole is a named grouping of users that policies can be scoped to.
// Roles are always referenced by ID from policies and user contexts, never
// embedded by value.
type SecurityRole struct {
	// ID is the unique role identifier.
	ID string `json:"id"`

	// Name is the human-readable role name.
	Name string `json:"name"`

	// Description explains what the role is for.
	Description string `json:"description,omitempty"`

	// IsDefault marks the role assigned to users with no explicit roles.
	IsDefault bool `json:"isDefault"`

	// Priority is advisory ordering metadata. Higher values sort first.
	Priority int `json:"priority,omitempty"`
}
