package rls

import "time"

// Settings is the process-wide RLS configuration, mutable only by admin
// action through the store. The engine reads it from an immutable
// snapshot; mutation handlers publish a new snapshot rather than editing
// shared fields in place.
type Settings struct {
	// Enabled turns row-level security on. When false the engine returns
	// "no filter" unconditionally (emergency disablement).
	Enabled bool `json:"enabled"`

	// DefaultDeny denies access to tables with no matching policy instead
	// of leaving them unrestricted.
	DefaultDeny bool `json:"defaultDeny"`

	// CacheTTLSeconds bounds how long a cached filter decision may be
	// served.
	CacheTTLSeconds int `json:"cacheTtlSeconds"`

	// LogAccess emits an access record for every evaluation.
	LogAccess bool `json:"logAccess"`

	// AuditMode evaluates and records policy decisions without enforcing
	// them.
	AuditMode bool `json:"auditMode"`
}

// DefaultSettings returns the settings applied before an administrator
// has configured anything: RLS on, default-allow, 5 minute cache.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		DefaultDeny:     false,
		CacheTTLSeconds: 300,
		LogAccess:       false,
		AuditMode:       false,
	}
}

// CacheTTL returns CacheTTLSeconds as a duration. A non-positive value
// disables caching.
func (s Settings) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}
