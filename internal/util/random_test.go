package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		hexLength int
	}{
		{"empty prefix", "", 8},
		{"short", "x_", 4},
		{"long", "outbound_", 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("GenerateRandomID() = %q, want prefix %q", id, tt.prefix)
			}
			hex := strings.TrimPrefix(id, tt.prefix)
			if len(hex) != tt.hexLength {
				t.Errorf("hex part length = %d, want %d", len(hex), tt.hexLength)
			}
			if !isValidHex(hex) {
				t.Errorf("hex part %q contains non-hex characters", hex)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("GenerateRandomHex(0) = %q, want empty", got)
	}
	if got := GenerateRandomHex(-3); got != "" {
		t.Errorf("GenerateRandomHex(-3) = %q, want empty", got)
	}
	if got := GenerateRandomHex(16); len(got) != 16 || !isValidHex(got) {
		t.Errorf("GenerateRandomHex(16) = %q, want 16 hex characters", got)
	}
}

func TestGenerateMessageID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateMessageID()
		if !strings.HasPrefix(id, "msg_") || len(id) != len("msg_")+24 {
			t.Fatalf("GenerateMessageID() = %q, want msg_ followed by 24 hex characters", id)
		}
		if seen[id] {
			t.Fatalf("GenerateMessageID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
