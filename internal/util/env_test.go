package util

import (
	"slices"
	"strings"
	"testing"
)

func TestEnv(t *testing.T) {
	t.Setenv("REXBOT_TEST_SET", "value")
	if got := Env("REXBOT_TEST_SET", "fallback"); got != "value" {
		t.Errorf("Env(set) = %q", got)
	}
	if got := Env("REXBOT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Env(unset) = %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true}, {"1", true}, {"YES", true}, {"on", true},
		{"false", false}, {"0", false}, {"No", false}, {"off", false},
		{"maybe", true}, // invalid keeps the default
	}
	for _, tt := range tests {
		t.Setenv("REXBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("REXBOT_TEST_BOOL", true); got != tt.want {
			t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
	if got := ParseBoolEnv("REXBOT_TEST_BOOL_UNSET", false); got {
		t.Error("unset variable ignored the default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("REXBOT_TEST_INT", " 42 ")
	if got := ParseIntEnv("REXBOT_TEST_INT", 5); got != 42 {
		t.Errorf("ParseIntEnv = %d", got)
	}
	t.Setenv("REXBOT_TEST_INT", "not a number")
	if got := ParseIntEnv("REXBOT_TEST_INT", 5); got != 5 {
		t.Errorf("ParseIntEnv(invalid) = %d, want default", got)
	}
}

func TestParseInt64ListEnv(t *testing.T) {
	t.Setenv("REXBOT_TEST_IDS", "1, 2,broken, 3,")
	got := ParseInt64ListEnv("REXBOT_TEST_IDS")
	if !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("ParseInt64ListEnv = %v", got)
	}
	if got := ParseInt64ListEnv("REXBOT_TEST_IDS_UNSET"); got != nil {
		t.Errorf("ParseInt64ListEnv(unset) = %v, want nil", got)
	}
}

func TestGenerateActivationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateActivationCode()
		if !strings.HasPrefix(code, "RX-") || len(code) != 19 {
			t.Fatalf("code = %q, want RX- prefix and 16 random characters", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code generated: %q", code)
		}
		seen[code] = true
	}
}
