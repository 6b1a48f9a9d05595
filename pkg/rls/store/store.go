package store

import (
	"context"
	"errors"
	"fmt"

	"openboard/rowguard/pkg/rls"
)

// Common sentinel errors returned by store implementations.
var (
	// ErrNotFound indicates the requested policy or role does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly indicates the store does not accept mutations.
	ErrReadOnly = errors.New("store is read-only")
)

// Store is the policy/role/configuration persistence contract the engine
// consumes. Reads feed the engine's snapshot loader; every mutation bumps
// the generation counter before it returns and emits a change event, so
// cached filter decisions built against the previous generation become
// logically stale immediately.
//
// Generation must be a local atomic read: the engine consults it on the
// evaluation hot path and no store call there may touch the network.
type Store interface {
	// ListPolicies returns all policies, enabled or not.
	ListPolicies(ctx context.Context) ([]rls.Policy, error)

	// ListRoles returns all security roles.
	ListRoles(ctx context.Context) ([]rls.SecurityRole, error)

	// GetSettings returns the process-wide RLS configuration.
	GetSettings(ctx context.Context) (rls.Settings, error)

	// Generation returns the monotonically increasing mutation counter.
	Generation() uint64

	// Watch delivers change events until ctx is cancelled. The returned
	// channel is closed when the context ends.
	Watch(ctx context.Context) (<-chan Event, error)

	// Close releases store resources.
	Close() error
}

// MutableStore extends Store with administrative write operations. The
// HTTP admin surface and the CLI operate through this interface; each
// call validates its input, persists, bumps the generation, and notifies
// watchers.
type MutableStore interface {
	Store

	CreatePolicy(ctx context.Context, policy rls.Policy) error
	UpdatePolicy(ctx context.Context, policy rls.Policy) error
	DeletePolicy(ctx context.Context, id string) error
	TogglePolicy(ctx context.Context, id string, enabled bool) error

	CreateRole(ctx context.Context, role rls.SecurityRole) error
	UpdateRole(ctx context.Context, role rls.SecurityRole) error
	DeleteRole(ctx context.Context, id string) error

	UpdateSettings(ctx context.Context, settings rls.Settings) error
}

// EventType identifies what kind of entity changed.
type EventType string

const (
	EventPolicyChanged   EventType = "policy"
	EventRoleChanged     EventType = "role"
	EventSettingsChanged EventType = "settings"
	EventReloaded        EventType = "reloaded"
)

// Event describes one store mutation. Watchers use it to trigger a
// snapshot refresh; the entity ID is informational.
type Event struct {
	// Type is the kind of entity that changed.
	Type EventType

	// ID identifies the changed policy or role, when applicable.
	ID string

	// Generation is the store generation after the change.
	Generation uint64
}

// NotFoundError wraps ErrNotFound with the entity kind and ID.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap returns ErrNotFound so callers can match with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
