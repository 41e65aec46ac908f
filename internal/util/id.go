package util

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a lowercase ulid, optionally prefixed with "prefix_".
func NewID(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewSID returns a connection id.
func NewSID() string {
	return NewID("")
}

// NewWindowID returns a pane id for panes created without a caller-supplied id.
func NewWindowID() string {
	return NewID("window")
}

// NewContentID returns a fresh content id. Consumers compare it to detect pane changes.
func NewContentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
