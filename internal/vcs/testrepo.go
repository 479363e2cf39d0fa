package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TestRepo builds throwaway repositories for tests in other packages
type TestRepo struct {
	Dir  string
	repo *git.Repository
	when time.Time
}

// InitTestRepo creates an empty repository in dir
func InitTestRepo(dir string) (*TestRepo, error) {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, err
	}
	return &TestRepo{
		Dir:  dir,
		repo: repo,
		when: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

// Commit writes files (path -> content) and commits them. Each commit is one
// minute after the previous one.
func (t *TestRepo) Commit(msg string, files map[string]string) (string, error) {
	wt, err := t.repo.Worktree()
	if err != nil {
		return "", err
	}

	for name, content := range files {
		path := filepath.Join(t.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", err
		}
		if _, err := wt.Add(name); err != nil {
			return "", err
		}
	}

	t.when = t.when.Add(time.Minute)
	sig := &object.Signature{Name: "rpmci", Email: "rpmci@example.com", When: t.when}
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// Tag creates a lightweight tag on HEAD, or an annotated one when annotated
// is true
func (t *TestRepo) Tag(name string, annotated bool) error {
	head, err := t.repo.Head()
	if err != nil {
		return err
	}

	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{
			Tagger:  &object.Signature{Name: "rpmci", Email: "rpmci@example.com", When: t.when},
			Message: fmt.Sprintf("tag %s", name),
		}
	}
	_, err = t.repo.CreateTag(name, head.Hash(), opts)
	return err
}

// TagCommit creates a lightweight tag on an arbitrary commit
func (t *TestRepo) TagCommit(name, hash string) error {
	_, err := t.repo.CreateTag(name, plumbing.NewHash(hash), nil)
	return err
}
