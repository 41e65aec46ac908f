package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewWindowID()
	if !strings.HasPrefix(id, "window_") {
		t.Fatalf("NewWindowID() = %q, want window_ prefix", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestNewContentIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewContentID()
		if strings.Contains(id, "-") {
			t.Fatalf("content id %q contains dashes", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate content id %q", id)
		}
		seen[id] = struct{}{}
	}
}
