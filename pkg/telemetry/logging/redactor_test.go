package logging

import (
	"log/slog"
	"testing"

	"openboard/rowguard/pkg/config"
)

func TestRedactString(t *testing.T) {
	r := NewRedactor(nil)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "email keeps domain",
			input: "user alice@example.com logged in",
			want:  "user ***@example.com logged in",
		},
		{
			name:  "bearer token masked",
			input: "header Bearer eyJhbGciOi.payload",
			want:  "header Bearer ***",
		},
		{
			name:  "api key keeps prefix",
			input: "using sk-1234567890abcdef",
			want:  "using sk-***",
		},
		{
			name:  "ipv4 keeps first octet",
			input: "client 10.42.0.17 connected",
			want:  "client 10.*.*.* connected",
		},
		{
			name:  "clean string untouched",
			input: "orders table filtered by region",
			want:  "orders table filtered by region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactAttrSensitiveKeys(t *testing.T) {
	r := NewRedactor(nil)

	attr := r.RedactAttr(slog.String("db_password", "hunter2hunter2"))
	if got := attr.Value.String(); got != "hunt***" {
		t.Errorf("masked value = %q", got)
	}

	// Non-string values under safe keys pass through.
	orig := slog.Int("count", 7)
	if got := r.RedactAttr(orig); got.Value.Kind() != slog.KindInt64 {
		t.Errorf("int attr rewritten: %v", got)
	}
}

func TestCustomPatterns(t *testing.T) {
	r := NewRedactor([]config.RedactPattern{
		{Name: "employee_id", Pattern: `E-\d{6}`, Replacement: "E-******"},
		{Name: "broken", Pattern: `([`, Replacement: "x"},
	})

	if got := r.RedactString("employee E-123456 requested"); got != "employee E-****** requested" {
		t.Errorf("custom pattern not applied: %q", got)
	}
}
