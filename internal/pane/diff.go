package pane

import (
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"
)

// WindowUpdate is the patch packet sent instead of a full pane when it is
// smaller. FinalHash is Hash of the pane the patch produces.
type WindowUpdate struct {
	Command   string         `json:"command"`
	Win       string         `json:"win"`
	Env       string         `json:"env"`
	Content   jsondiff.Patch `json:"content"`
	FinalHash string         `json:"finalHash"`
}

// Diff returns the RFC 6902 patch turning prev into next.
func Diff(prev, next *Pane) (jsondiff.Patch, error) {
	source, err := prev.Document()
	if err != nil {
		return nil, err
	}
	target, err := next.Document()
	if err != nil {
		return nil, err
	}
	patch, err := jsondiff.Compare(source, target)
	if err != nil {
		return nil, fmt.Errorf("diff pane %s: %w", next.ID, err)
	}
	return patch, nil
}

// Packet returns the serialized message to broadcast after prev became next
// in env eid: the full pane or a window_update patch, whichever is shorter.
// prev may be nil, in which case the full pane is always sent.
func Packet(prev, next *Pane, eid string) ([]byte, error) {
	full, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal pane %s: %w", next.ID, err)
	}
	if prev == nil {
		return full, nil
	}
	patch, err := Diff(prev, next)
	if err != nil {
		return nil, err
	}
	hash, err := Hash(next)
	if err != nil {
		return nil, err
	}
	delta, err := json.Marshal(WindowUpdate{
		Command:   "window_update",
		Win:       next.ID,
		Env:       eid,
		Content:   patch,
		FinalHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal window_update %s: %w", next.ID, err)
	}
	if len(full) <= len(delta) {
		return full, nil
	}
	return delta, nil
}
