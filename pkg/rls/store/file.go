package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"openboard/rowguard/pkg/rls"
)

// FileStore is a read-only Store backed by a single YAML bundle on disk.
// It suits GitOps-style deployments where policies are reviewed and
// shipped as files; edits to the bundle are picked up automatically
// through fsnotify with debouncing, and each successful reload bumps the
// generation so cached decisions refresh.
//
// A reload that fails to parse or validate keeps the previous bundle in
// place.
type FileStore struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.RWMutex
	policies []rls.Policy
	roles    []rls.SecurityRole
	settings rls.Settings

	generation atomic.Uint64
	hub        *watchHub

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// fileBundle is the YAML document shape. The bundle reuses the JSON
// field names of the policy model.
type fileBundle struct {
	Policies []rls.Policy       `json:"policies"`
	Roles    []rls.SecurityRole `json:"roles"`
	Settings *rls.Settings      `json:"settings"`
}

// NewFileStore loads the bundle at path and starts watching it for
// changes.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	s, err := NewStaticFileStore(path, logger)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// Watch the containing directory: editors replace files by rename,
	// which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}
	s.watcher = watcher

	go s.watchLoop()

	return s, nil
}

// NewStaticFileStore loads the bundle at path once, without watching for
// changes. Reload still works on demand.
func NewStaticFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:     path,
		logger:   logger.With("component", "rls-filestore"),
		debounce: 100 * time.Millisecond,
		settings: rls.DefaultSettings(),
		hub:      newWatchHub(),
		done:     make(chan struct{}),
	}
	s.generation.Store(1)

	if err := s.reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// ListPolicies returns all policies in the bundle.
func (s *FileStore) ListPolicies(ctx context.Context) ([]rls.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rls.Policy, len(s.policies))
	copy(out, s.policies)
	return out, nil
}

// ListRoles returns all roles in the bundle.
func (s *FileStore) ListRoles(ctx context.Context) ([]rls.SecurityRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rls.SecurityRole, len(s.roles))
	copy(out, s.roles)
	return out, nil
}

// GetSettings returns the bundle's settings, or defaults if the bundle
// has none.
func (s *FileStore) GetSettings(ctx context.Context) (rls.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// Generation returns the reload counter.
func (s *FileStore) Generation() uint64 {
	return s.generation.Load()
}

// Watch delivers reload events until ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context) (<-chan Event, error) {
	return s.hub.watch(ctx)
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.closeAll()
		if s.watcher != nil {
			closeErr = s.watcher.Close()
		}
	})
	return closeErr
}

// Reload re-reads the bundle on demand, outside of any file event.
func (s *FileStore) Reload() error {
	if err := s.reload(); err != nil {
		return err
	}
	gen := s.generation.Add(1)
	s.hub.notify(Event{Type: EventReloaded, Generation: gen})
	return nil
}

// reload parses and validates the bundle, replacing the in-memory state
// only when the whole file is good.
func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read bundle %q: %w", s.path, err)
	}

	var bundle fileBundle
	if err := unmarshalYAML(data, &bundle); err != nil {
		return fmt.Errorf("failed to parse bundle %q: %w", s.path, err)
	}

	roleIndex := make(map[string]rls.SecurityRole, len(bundle.Roles))
	for _, role := range bundle.Roles {
		if role.ID == "" {
			return fmt.Errorf("bundle %q: role with empty id", s.path)
		}
		if _, dup := roleIndex[role.ID]; dup {
			return fmt.Errorf("bundle %q: duplicate role id %q", s.path, role.ID)
		}
		roleIndex[role.ID] = role
	}

	seen := make(map[string]bool, len(bundle.Policies))
	for i := range bundle.Policies {
		p := &bundle.Policies[i]
		if seen[p.ID] {
			return fmt.Errorf("bundle %q: duplicate policy id %q", s.path, p.ID)
		}
		seen[p.ID] = true
		if err := rls.ValidatePolicy(p, roleIndex); err != nil {
			return fmt.Errorf("bundle %q: %w", s.path, err)
		}
	}

	settings := rls.DefaultSettings()
	if bundle.Settings != nil {
		settings = *bundle.Settings
	}

	s.mu.Lock()
	s.policies = bundle.Policies
	s.roles = bundle.Roles
	s.settings = settings
	s.mu.Unlock()

	s.logger.Info("policy bundle loaded",
		"path", s.path,
		"policies", len(bundle.Policies),
		"roles", len(bundle.Roles))
	return nil
}

// watchLoop debounces file events and reloads the bundle.
func (s *FileStore) watchLoop() {
	var pending <-chan time.Time

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == event.Op {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			s.logger.Debug("bundle file event", "path", event.Name, "op", event.Op.String())
			pending = time.After(s.debounce)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("file watcher error", "error", err)

		case <-pending:
			pending = nil
			if err := s.reload(); err != nil {
				s.logger.Error("bundle reload failed, keeping previous bundle", "error", err)
				continue
			}
			gen := s.generation.Add(1)
			s.hub.notify(Event{Type: EventReloaded, Generation: gen})
		}
	}
}

// unmarshalYAML decodes YAML through an intermediate generic value so
// the policy model's JSON field names apply to bundle files too.
func unmarshalYAML(data []byte, out interface{}) error {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	encoded, err := json.Marshal(normalizeYAML(generic))
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// normalizeYAML converts map[interface{}]interface{} keys (produced for
// some YAML shapes) into string keys so the value is JSON-encodable.
func normalizeYAML(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, elem := range v {
			v[key] = normalizeYAML(elem)
		}
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[fmt.Sprintf("%v", key)] = normalizeYAML(elem)
		}
		return out
	case []interface{}:
		for i, elem := range v {
			v[i] = normalizeYAML(elem)
		}
		return v
	default:
		return value
	}
}
