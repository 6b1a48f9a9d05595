package rls

// Policy grants visibility to rows matching its condition tree, scoped to
// a table and optionally to a set of roles. Multiple applicable policies
// for the same table combine as independent grants: a row is visible if it
// satisfies at least one of them.
type Policy struct {
	// ID is the unique policy identifier.
	ID string `json:"id"`

	// Name is the human-readable policy name.
	Name string `json:"name"`

	// Enabled controls whether the policy participates in evaluation.
	Enabled bool `json:"enabled"`

	// Priority orders applicable policies (higher first). It is advisory
	// metadata and never suppresses lower-priority grants.
	Priority int `json:"priority,omitempty"`

	// SchemaName scopes the policy to one schema. Empty means any schema.
	SchemaName string `json:"schemaName,omitempty"`

	// TableName scopes the policy to one table. Empty means every table
	// in scope.
	TableName string `json:"tableName,omitempty"`

	// ConnectionID scopes the policy to one connection. Empty means any.
	ConnectionID string `json:"connectionId,omitempty"`

	// FilterGroup is the root of the policy's condition tree.
	FilterGroup ConditionGroup `json:"filterGroup"`

	// RoleIDs restricts the policy to users holding at least one of these
	// roles. An empty list applies the policy to every role.
	RoleIDs []string `json:"roleIds"`
}

// MatchesTable returns true if the policy's connection/schema/table scope
// covers the given identifiers. Empty scope fields match anything.
func (p *Policy) MatchesTable(connectionID, schemaName, tableName string) bool {
	if p.ConnectionID != "" && p.ConnectionID != connectionID {
		return false
	}
	if p.SchemaName != "" && p.SchemaName != schemaName {
		return false
	}
	if p.TableName != "" && p.TableName != tableName {
		return false
	}
	return true
}

// AppliesToUser returns true if the policy's role scope covers the user.
// A policy with no role IDs applies to every user.
func (p *Policy) AppliesToUser(user *UserSecurityContext) bool {
	if len(p.RoleIDs) == 0 {
		return true
	}
	return user.HasAnyRole(p.RoleIDs)
}
