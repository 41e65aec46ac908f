// Package history records every persisted env snapshot as a commit in a
// local git repository, one {eid}.json file per env.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"panehub/server/internal/snapshot"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var ErrNoHistory = errors.New("no history for env")

const (
	authorName  = "panehub"
	authorEmail = "panehub@localhost"
)

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct {
	mu   sync.Mutex
	path string
	repo *git.Repository
}

// Open opens the repository at path, initializing it when missing.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return nil, fmt.Errorf("init history repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}
	return &Repo{path: path, repo: repo}, nil
}

func fileName(eid string) string {
	return eid + ".json"
}

// Record commits body as the new snapshot of eid. An unchanged body is not
// committed again.
func (r *Repo) Record(eid string, body []byte, message string) (Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.path, fileName(eid)), body, 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", fileName(eid), err)
	}
	if _, err := worktree.Add(fileName(eid)); err != nil {
		return Commit{}, fmt.Errorf("git add %s: %w", fileName(eid), err)
	}
	return r.commit(worktree, message)
}

// Forget commits the removal of eid's snapshot. Envs that were never
// recorded are ignored.
func (r *Repo) Forget(eid string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(filepath.Join(r.path, fileName(eid))); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Remove(fileName(eid)); err != nil {
		return fmt.Errorf("git rm %s: %w", fileName(eid), err)
	}
	_, err = r.commit(worktree, message)
	return err
}

func (r *Repo) commit(worktree *git.Worktree, message string) (Commit, error) {
	status, err := worktree.Status()
	if err != nil {
		return Commit{}, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		head, err := r.repo.Head()
		if err == nil {
			if commitObj, err := r.repo.CommitObject(head.Hash()); err == nil {
				return toCommit(commitObj), nil
			}
		}
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := r.repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// Log lists the commits touching eid, newest first. limit <= 0 means all.
func (r *Repo) Log(eid string, limit int) ([]Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	name := fileName(eid)
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoHistory
	}
	return items, nil
}

// Snapshot returns eid's snapshot body as of the commit hash (full or
// abbreviated).
func (r *Repo) Snapshot(eid, hash string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved, err := resolveHash(r.repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := r.repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(fileName(eid))
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", fileName(eid), err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot bytes: %w", err)
	}
	return body, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

// Backend wraps a snapshot backend so every save and delete is also
// recorded in the history repository. History failures never fail the
// wrapped operation; they are reported to onError.
type Backend struct {
	snapshot.Backend
	repo    *Repo
	onError func(eid string, err error)
}

func Wrap(inner snapshot.Backend, repo *Repo, onError func(eid string, err error)) *Backend {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Backend{Backend: inner, repo: repo, onError: onError}
}

func (b *Backend) Repo() *Repo {
	return b.repo
}

func (b *Backend) Save(ctx context.Context, eid string, body []byte) error {
	if err := b.Backend.Save(ctx, eid, body); err != nil {
		return err
	}
	if _, err := b.repo.Record(eid, body, "save "+eid); err != nil {
		b.onError(eid, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, eid string) error {
	if err := b.Backend.Delete(ctx, eid); err != nil {
		return err
	}
	if err := b.repo.Forget(eid, "delete "+eid); err != nil {
		b.onError(eid, err)
	}
	return nil
}
