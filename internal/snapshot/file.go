package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	layoutsDir  = "view"
	layoutsFile = "layouts.json"
)

// FileBackend stores one {eid}.json per env in a directory, plus
// view/layouts.json holding the layouts blob as a JSON string.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Join(dir, layoutsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create env dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(eid string) string {
	return filepath.Join(b.dir, eid+".json")
}

func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read env dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *FileBackend) Load(_ context.Context, eid string) ([]byte, error) {
	body, err := os.ReadFile(b.path(eid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read env %s: %w", eid, err)
	}
	return body, nil
}

func (b *FileBackend) Save(_ context.Context, eid string, body []byte) error {
	return writeAtomic(b.path(eid), body)
}

func (b *FileBackend) Delete(_ context.Context, eid string) error {
	err := os.Remove(b.path(eid))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove env %s: %w", eid, err)
	}
	return nil
}

func (b *FileBackend) LoadLayouts(_ context.Context) (string, error) {
	raw, err := os.ReadFile(filepath.Join(b.dir, layoutsDir, layoutsFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read layouts: %w", err)
	}
	var layouts string
	if err := json.Unmarshal(raw, &layouts); err != nil {
		return "", fmt.Errorf("decode layouts: %w", err)
	}
	return layouts, nil
}

func (b *FileBackend) SaveLayouts(_ context.Context, layouts string) error {
	raw, err := json.Marshal(layouts)
	if err != nil {
		return fmt.Errorf("encode layouts: %w", err)
	}
	return writeAtomic(filepath.Join(b.dir, layoutsDir, layoutsFile), raw)
}

func (b *FileBackend) Ping(_ context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("stat env dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("env path %s is not a directory", b.dir)
	}
	return nil
}

// writeAtomic writes body to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
