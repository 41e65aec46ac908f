package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"panehub/server/internal/snapshot"

	"github.com/golang/glog"
)

var (
	ErrNotFound = errors.New("env not found")
	ErrExists   = errors.New("env already exists")
)

// Store maps env ids to environments. Envs found on the backend start as
// lazy handles and are decoded on first access unless eager loading is on.
//
// Store is not safe for concurrent use; the broker serializes all access.
type Store struct {
	backend snapshot.Backend
	eager   bool

	envs    map[string]*Env
	lazy    map[string]struct{}
	layouts string
}

func NewStore(backend snapshot.Backend, eager bool) *Store {
	return &Store{
		backend: backend,
		eager:   eager,
		envs:    map[string]*Env{},
		lazy:    map[string]struct{}{},
	}
}

func (s *Store) Backend() snapshot.Backend {
	return s.backend
}

// LoadAll enumerates the backend, registers a handle per snapshot, loads
// the layouts blob and makes sure DefaultID exists and is persisted.
func (s *Store) LoadAll(ctx context.Context) error {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("list envs: %w", err)
	}
	for _, eid := range ids {
		if _, loaded := s.envs[eid]; loaded {
			continue
		}
		s.lazy[eid] = struct{}{}
		if s.eager {
			if _, err := s.materialize(ctx, eid); err != nil {
				glog.Errorf("eager load of env %s failed: %v", eid, err)
			}
		}
	}

	layouts, err := s.backend.LoadLayouts(ctx)
	if err != nil {
		return fmt.Errorf("load layouts: %w", err)
	}
	s.layouts = layouts

	if !s.Has(DefaultID) {
		s.envs[DefaultID] = New(DefaultID)
		if err := s.SaveEnv(ctx, DefaultID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) materialize(ctx context.Context, eid string) (*Env, error) {
	delete(s.lazy, eid)
	body, err := s.backend.Load(ctx, eid)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load env %s: %w", eid, err)
	}
	e, err := Decode(eid, body)
	if err != nil {
		return nil, err
	}
	s.envs[eid] = e
	return e, nil
}

// Has reports whether eid is known, loaded or not, without loading it.
func (s *Store) Has(eid string) bool {
	if _, ok := s.envs[eid]; ok {
		return true
	}
	_, ok := s.lazy[eid]
	return ok
}

// Get returns the env, materializing a lazy handle. A handle that fails to
// decode is dropped from memory and the error returned.
func (s *Store) Get(ctx context.Context, eid string) (*Env, error) {
	if e, ok := s.envs[eid]; ok {
		return e, nil
	}
	if _, ok := s.lazy[eid]; ok {
		return s.materialize(ctx, eid)
	}
	return nil, ErrNotFound
}

// GetOrCreate returns the env, creating an empty in-memory one when it is
// unknown. created reports whether it was new.
func (s *Store) GetOrCreate(ctx context.Context, eid string) (*Env, bool, error) {
	e, err := s.Get(ctx, eid)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	e = New(eid)
	s.envs[eid] = e
	return e, true, nil
}

// Put installs e under e.ID, replacing whatever was there.
func (s *Store) Put(e *Env) {
	delete(s.lazy, e.ID)
	s.envs[e.ID] = e
}

// SaveEnv persists one in-memory env.
func (s *Store) SaveEnv(ctx context.Context, eid string) error {
	e, ok := s.envs[eid]
	if !ok {
		return ErrNotFound
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize env %s: %w", eid, err)
	}
	if err := s.backend.Save(ctx, eid, body); err != nil {
		return fmt.Errorf("persist env %s: %w", eid, err)
	}
	return nil
}

// Save persists each listed env that is present and returns those ids.
// A lazy handle was never changed since it was read, so its snapshot is
// already current and it counts as saved. Unknown ids are skipped.
func (s *Store) Save(ctx context.Context, eids []string) ([]string, error) {
	saved := make([]string, 0, len(eids))
	for _, eid := range eids {
		if _, ok := s.lazy[eid]; ok {
			saved = append(saved, eid)
			continue
		}
		if _, ok := s.envs[eid]; !ok {
			continue
		}
		if err := s.SaveEnv(ctx, eid); err != nil {
			return saved, err
		}
		saved = append(saved, eid)
	}
	return saved, nil
}

// Delete removes eid from memory and from the backend.
func (s *Store) Delete(ctx context.Context, eid string) error {
	delete(s.envs, eid)
	delete(s.lazy, eid)
	if err := s.backend.Delete(ctx, eid); err != nil {
		return fmt.Errorf("delete env %s: %w", eid, err)
	}
	return nil
}

// Fork deep-copies src into dst, overwriting dst, and persists dst.
func (s *Store) Fork(ctx context.Context, src, dst string) (*Env, error) {
	source, err := s.Get(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fork %s: %w", src, err)
	}
	forked := source.Clone(dst)
	s.Put(forked)
	if err := s.SaveEnv(ctx, dst); err != nil {
		return nil, err
	}
	return forked, nil
}

// IDs lists every env in memory, every lazy handle, and every snapshot
// still present on the backend, sorted.
func (s *Store) IDs(ctx context.Context) []string {
	seen := make(map[string]struct{}, len(s.envs)+len(s.lazy))
	for eid := range s.envs {
		seen[eid] = struct{}{}
	}
	for eid := range s.lazy {
		seen[eid] = struct{}{}
	}
	stored, err := s.backend.List(ctx)
	if err != nil {
		glog.Warningf("list stored envs: %v", err)
	}
	for _, eid := range stored {
		seen[eid] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for eid := range seen {
		ids = append(ids, eid)
	}
	sort.Strings(ids)
	return ids
}

// Loaded returns the materialized envs without touching lazy handles.
func (s *Store) Loaded() []*Env {
	out := make([]*Env, 0, len(s.envs))
	for _, e := range s.envs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Layouts() string {
	return s.layouts
}

// SetLayouts replaces and persists the shared layouts blob.
func (s *Store) SetLayouts(ctx context.Context, layouts string) error {
	s.layouts = layouts
	if err := s.backend.SaveLayouts(ctx, layouts); err != nil {
		return fmt.Errorf("persist layouts: %w", err)
	}
	return nil
}
