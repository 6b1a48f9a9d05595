package logging

import (
	"log/slog"
	"regexp"
	"strings"

	"openboard/rowguard/pkg/config"
)

// Redactor redacts sensitive values from log attributes.
type Redactor struct {
	patterns map[string]*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternEmail       = "email"
	PatternBearerToken = "bearer_token"
	PatternAPIKey      = "api_key"
	PatternIPv4        = "ipv4"
)

// NewRedactor creates a new Redactor with default and custom patterns.
// Custom patterns with invalid regular expressions are skipped.
func NewRedactor(customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{
		patterns: make(map[string]*redactPattern),
	}

	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	return r
}

// addDefaultPatterns adds built-in redaction patterns. User attribute
// values routinely carry emails and network addresses; tokens and keys
// should never appear but get caught anyway.
func (r *Redactor) addDefaultPatterns() {
	defaults := map[string]struct {
		regex       string
		replacement string
	}{
		PatternEmail: {
			regex:       `\b[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`,
			replacement: "***@$1",
		},
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},
		PatternAPIKey: {
			regex:       `\b(sk|pk|rk)-[a-zA-Z0-9]{8,}\b`,
			replacement: "$1-***",
		},
		PatternIPv4: {
			regex:       `\b(\d{1,3})\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`,
			replacement: "$1.*.*.*",
		},
	}

	for name, p := range defaults {
		r.patterns[name] = &redactPattern{
			name:        name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		}
	}
}

// RedactString redacts sensitive content from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}

	return redacted
}

// RedactAttr redacts a single slog attribute. Values under sensitive
// keys are masked entirely; other string values go through the pattern
// set.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// isSensitiveKey checks if a key name indicates a value that must be
// masked regardless of content.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey",
		"authorization",
		"private_key", "privatekey",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}

	return false
}

// maskValue masks a sensitive value, keeping a short prefix for
// identification.
func maskValue(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:4] + "***"
}
