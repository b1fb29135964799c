package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{name: "unset uses default", value: "", defaultValue: true, want: true},
		{name: "true", value: "true", defaultValue: false, want: true},
		{name: "yes with whitespace", value: "  YES ", defaultValue: false, want: true},
		{name: "zero", value: "0", defaultValue: true, want: false},
		{name: "off", value: "off", defaultValue: true, want: false},
		{name: "garbage uses default", value: "maybe", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_BOOL_ENV", tt.value)
			}
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT_ENV", "15")
	if got := ParseIntEnv("TEST_INT_ENV", 10); got != 15 {
		t.Errorf("got %d, want 15", got)
	}

	t.Setenv("TEST_INT_ENV", "not-a-number")
	if got := ParseIntEnv("TEST_INT_ENV", 10); got != 10 {
		t.Errorf("got %d, want default 10", got)
	}
}

func TestEnvOrDefault(t *testing.T) {
	if got := EnvOrDefault("TEST_UNSET_ENV", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}

	t.Setenv("TEST_SET_ENV", "configured")
	if got := EnvOrDefault("TEST_SET_ENV", "fallback"); got != "configured" {
		t.Errorf("got %q, want configured", got)
	}
}
