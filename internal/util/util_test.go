package util

import (
	"testing"
	"time"
)

func TestRedactPhone(t *testing.T) {
	tests := map[string]string{
		"+447700900123": "***0123",
		"1234":          "***",
		"":              "***",
	}
	for in, want := range tests {
		if got := RedactPhone(in); got != want {
			t.Errorf("RedactPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("ISITSTOLEN_TEST_BOOL", "yes")
	if !ParseBoolEnv("ISITSTOLEN_TEST_BOOL", false) {
		t.Error("expected yes to parse as true")
	}
	t.Setenv("ISITSTOLEN_TEST_BOOL", "maybe")
	if !ParseBoolEnv("ISITSTOLEN_TEST_BOOL", true) {
		t.Error("expected invalid value to return the default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("ISITSTOLEN_TEST_INT", "30")
	if got := ParseIntEnv("ISITSTOLEN_TEST_INT", 10); got != 30 {
		t.Errorf("ParseIntEnv = %d, want 30", got)
	}
	t.Setenv("ISITSTOLEN_TEST_INT", "-1")
	if got := ParseIntEnv("ISITSTOLEN_TEST_INT", 10); got != 10 {
		t.Errorf("ParseIntEnv = %d, want default 10", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Hour},
		{"90", 90 * time.Second},
		{"15m", 15 * time.Minute},
		{"soon", time.Hour},
		{"-5s", time.Hour},
	}
	for _, tt := range tests {
		t.Setenv("ISITSTOLEN_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("ISITSTOLEN_TEST_DURATION", time.Hour); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ISITSTOLEN_TEST_STRING", "  ")
	if got := GetEnv("ISITSTOLEN_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q, want fallback", got)
	}
	t.Setenv("ISITSTOLEN_TEST_STRING", "redis://cache:6379/1")
	if got := GetEnv("ISITSTOLEN_TEST_STRING", "fallback"); got != "redis://cache:6379/1" {
		t.Errorf("GetEnv = %q", got)
	}
}
