// Package config defines the Rowguard application configuration.
//
// Configuration is loaded from a YAML file, layered with defaults and
// ROWGUARD_* environment variable overrides, and validated before use:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("rowguard.yaml")
//
// Every section has working defaults; an empty file yields a runnable
// configuration with an in-memory policy store.
package config
