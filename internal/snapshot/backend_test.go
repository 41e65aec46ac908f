package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// exerciseBackend runs the Backend contract against b, which must start empty.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}
	if layouts, err := b.LoadLayouts(ctx); err != nil || layouts != "" {
		t.Fatalf("LoadLayouts() = %q, %v; want empty", layouts, err)
	}

	if err := b.Save(ctx, "main", []byte(`{"jsons":{},"reload":{}}`)); err != nil {
		t.Fatalf("Save(main): %v", err)
	}
	if err := b.Save(ctx, "b_run", []byte(`{"jsons":{"w":{}},"reload":{}}`)); err != nil {
		t.Fatalf("Save(b_run): %v", err)
	}
	if err := b.Save(ctx, "main", []byte(`{"jsons":{"x":{}},"reload":{}}`)); err != nil {
		t.Fatalf("Save(main) overwrite: %v", err)
	}

	ids, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List(): %v", err)
	}
	if diff := cmp.Diff([]string{"b_run", "main"}, ids); diff != "" {
		t.Fatalf("List() mismatch (-want +got):\n%s", diff)
	}

	body, err := b.Load(ctx, "main")
	if err != nil {
		t.Fatalf("Load(main): %v", err)
	}
	if string(body) != `{"jsons":{"x":{}},"reload":{}}` {
		t.Fatalf("Load(main) = %s", body)
	}

	if err := b.Delete(ctx, "b_run"); err != nil {
		t.Fatalf("Delete(b_run): %v", err)
	}
	if err := b.Delete(ctx, "b_run"); err != nil {
		t.Fatalf("second Delete(b_run) should be a no-op: %v", err)
	}
	if _, err := b.Load(ctx, "b_run"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(b_run) after delete error = %v", err)
	}

	if err := b.SaveLayouts(ctx, `{"main":{"w":[0,0]}}`); err != nil {
		t.Fatalf("SaveLayouts(): %v", err)
	}
	layouts, err := b.LoadLayouts(ctx)
	if err != nil {
		t.Fatalf("LoadLayouts(): %v", err)
	}
	if layouts != `{"main":{"w":[0,0]}}` {
		t.Fatalf("LoadLayouts() = %q", layouts)
	}
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping(): %v", err)
	}
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend(): %v", err)
	}
	exerciseBackend(t, b)

	if _, err := os.Stat(filepath.Join(dir, "b_run.json")); !os.IsNotExist(err) {
		t.Fatalf("expected b_run.json removed, stat err = %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "view", "layouts.json"))
	if err != nil {
		t.Fatalf("read layouts file: %v", err)
	}
	if string(raw) != `"{\"main\":{\"w\":[0,0]}}"` {
		t.Fatalf("layouts file should hold a JSON string, got %s", raw)
	}
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := b.Save(context.Background(), "main", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", entry.Name())
		}
	}
}

func TestFileBackendListSkipsNonSnapshots(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", ".hidden.json", "a.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := b.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a"}, ids); diff != "" {
		t.Fatalf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected migration file %s", entry.Name())
		}
		if byVersion[match[1]] == nil {
			byVersion[match[1]] = map[string]bool{}
		}
		byVersion[match[1]][match[2]] = true
	}
	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestPostgresBackend(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("PANEHUB_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PANEHUB_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres(): %v", err)
	}
	defer b.Close()
	if _, err := b.DB().ExecContext(ctx, `TRUNCATE env_snapshots, layouts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseBackend(t, b)

	if err := ApplyMigrations(ctx, b.DB()); err != nil {
		t.Fatalf("re-applying migrations should be a no-op: %v", err)
	}
}

func TestS3Backend(t *testing.T) {
	endpoint := strings.TrimSpace(os.Getenv("PANEHUB_TEST_S3_ENDPOINT"))
	if endpoint == "" {
		t.Skip("PANEHUB_TEST_S3_ENDPOINT is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	bucket := "panehub-test-" + strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-"))
	b, err := NewS3Backend(ctx, S3Config{
		Endpoint:  endpoint,
		Bucket:    bucket + "-" + time.Now().Format("150405"),
		AccessKey: os.Getenv("PANEHUB_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("PANEHUB_TEST_S3_SECRET_KEY"),
	})
	if err != nil {
		t.Fatalf("NewS3Backend(): %v", err)
	}
	exerciseBackend(t, b)
}
