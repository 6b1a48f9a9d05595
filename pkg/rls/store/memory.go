package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"openboard/rowguard/pkg/rls"
)

// MemoryStore is an in-memory MutableStore. It backs tests, the policy
// file source, and single-process deployments that do not need
// persistence. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]rls.Policy
	roles    map[string]rls.SecurityRole
	settings rls.Settings

	generation atomic.Uint64
	hub        *watchHub
}

// NewMemoryStore creates an empty in-memory store with default settings.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		policies: make(map[string]rls.Policy),
		roles:    make(map[string]rls.SecurityRole),
		settings: rls.DefaultSettings(),
		hub:      newWatchHub(),
	}
	s.generation.Store(1)
	return s
}

// ListPolicies returns all policies sorted by ID.
func (s *MemoryStore) ListPolicies(ctx context.Context) ([]rls.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rls.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRoles returns all roles sorted by ID.
func (s *MemoryStore) ListRoles(ctx context.Context) ([]rls.SecurityRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rls.SecurityRole, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSettings returns the current settings.
func (s *MemoryStore) GetSettings(ctx context.Context) (rls.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// Generation returns the mutation counter.
func (s *MemoryStore) Generation() uint64 {
	return s.generation.Load()
}

// Watch delivers change events until ctx is cancelled.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Event, error) {
	return s.hub.watch(ctx)
}

// Close releases all watchers.
func (s *MemoryStore) Close() error {
	s.hub.closeAll()
	return nil
}

// CreatePolicy validates and stores a new policy.
func (s *MemoryStore) CreatePolicy(ctx context.Context, policy rls.Policy) error {
	s.mu.Lock()
	if err := rls.ValidatePolicy(&policy, s.roles); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, exists := s.policies[policy.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("policy %q already exists", policy.ID)
	}
	s.policies[policy.ID] = policy
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventPolicyChanged, ID: policy.ID, Generation: gen})
	return nil
}

// UpdatePolicy validates and replaces an existing policy.
func (s *MemoryStore) UpdatePolicy(ctx context.Context, policy rls.Policy) error {
	s.mu.Lock()
	if err := rls.ValidatePolicy(&policy, s.roles); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, exists := s.policies[policy.ID]; !exists {
		s.mu.Unlock()
		return &NotFoundError{Kind: "policy", ID: policy.ID}
	}
	s.policies[policy.ID] = policy
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventPolicyChanged, ID: policy.ID, Generation: gen})
	return nil
}

// DeletePolicy removes a policy.
func (s *MemoryStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, exists := s.policies[id]; !exists {
		s.mu.Unlock()
		return &NotFoundError{Kind: "policy", ID: id}
	}
	delete(s.policies, id)
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventPolicyChanged, ID: id, Generation: gen})
	return nil
}

// TogglePolicy flips a policy's enabled flag without touching the rest
// of its definition.
func (s *MemoryStore) TogglePolicy(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	policy, exists := s.policies[id]
	if !exists {
		s.mu.Unlock()
		return &NotFoundError{Kind: "policy", ID: id}
	}
	policy.Enabled = enabled
	s.policies[id] = policy
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventPolicyChanged, ID: id, Generation: gen})
	return nil
}

// CreateRole stores a new role.
func (s *MemoryStore) CreateRole(ctx context.Context, role rls.SecurityRole) error {
	if role.ID == "" {
		return fmt.Errorf("role id cannot be empty")
	}
	s.mu.Lock()
	if _, exists := s.roles[role.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("role %q already exists", role.ID)
	}
	s.roles[role.ID] = role
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventRoleChanged, ID: role.ID, Generation: gen})
	return nil
}

// UpdateRole replaces an existing role.
func (s *MemoryStore) UpdateRole(ctx context.Context, role rls.SecurityRole) error {
	s.mu.Lock()
	if _, exists := s.roles[role.ID]; !exists {
		s.mu.Unlock()
		return &NotFoundError{Kind: "role", ID: role.ID}
	}
	s.roles[role.ID] = role
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventRoleChanged, ID: role.ID, Generation: gen})
	return nil
}

// DeleteRole removes a role. Policies still referencing it are rejected:
// a dangling role reference would silently change who a policy covers.
func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, exists := s.roles[id]; !exists {
		s.mu.Unlock()
		return &NotFoundError{Kind: "role", ID: id}
	}
	for _, p := range s.policies {
		for _, roleID := range p.RoleIDs {
			if roleID == id {
				s.mu.Unlock()
				return fmt.Errorf("role %q is referenced by policy %q", id, p.ID)
			}
		}
	}
	delete(s.roles, id)
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventRoleChanged, ID: id, Generation: gen})
	return nil
}

// UpdateSettings replaces the process-wide settings.
func (s *MemoryStore) UpdateSettings(ctx context.Context, settings rls.Settings) error {
	if settings.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache TTL cannot be negative")
	}
	s.mu.Lock()
	s.settings = settings
	gen := s.bumpLocked()
	s.mu.Unlock()

	s.notify(Event{Type: EventSettingsChanged, Generation: gen})
	return nil
}

// bumpLocked increments the generation. Caller must hold the write lock
// so the bump is ordered with the mutation it covers.
func (s *MemoryStore) bumpLocked() uint64 {
	return s.generation.Add(1)
}

func (s *MemoryStore) notify(event Event) {
	s.hub.notify(event)
}
