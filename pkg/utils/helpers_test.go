package utils

import (
	"strings"
	"testing"
)

func TestRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c := RoomCode(8)
		if len(c) != 8 {
			t.Fatalf("expected 8 characters, got %q", c)
		}
		for _, r := range c {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, c)
			}
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = true
	}
}

func TestRandomHex(t *testing.T) {
	if got := RandomHex(4); len(got) != 8 {
		t.Fatalf("expected 8 hex characters, got %q", got)
	}
}
