// Package vcs reads tags, HEAD and the HEAD tree of a git repository.
//
// It is backed by go-git, so no git binary is needed on the build host.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrNoTag is returned when no tag is reachable from HEAD
var ErrNoTag = errors.New("no tag reachable from HEAD")

// Commit describes the HEAD commit
type Commit struct {
	Hash  string
	Short string
	When  time.Time
}

// TreeFile is one blob of the HEAD tree
type TreeFile struct {
	Path       string
	Mode       os.FileMode
	Size       int64
	LinkTarget string

	open func() (io.ReadCloser, error)
}

// Open returns the file content
func (f TreeFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return f.open()
}

// GitRepo is a git repository opened from a path inside its worktree
type GitRepo struct {
	repo *git.Repository
}

// Open finds the repository containing path
func Open(path string) (*GitRepo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return &GitRepo{repo: repo}, nil
}

// Head returns the HEAD commit
func (r *GitRepo) Head() (*Commit, error) {
	c, err := r.headCommit()
	if err != nil {
		return nil, err
	}
	hash := c.Hash.String()
	return &Commit{Hash: hash, Short: hash[:7], When: c.Committer.When}, nil
}

// Tags lists all tag names
func (r *GitRepo) Tags() ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// HasTag reports whether a tag exists
func (r *GitRepo) HasTag(name string) (bool, error) {
	_, err := r.repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTag creates a lightweight tag on HEAD
func (r *GitRepo) CreateTag(name string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if _, err := r.repo.CreateTag(name, head.Hash(), nil); err != nil {
		return fmt.Errorf("failed to create tag %s: %w", name, err)
	}
	return nil
}

// LatestTag returns the tag on the most recent commit reachable from HEAD.
// Tags for which skip returns true are ignored. When one commit carries
// several tags the greatest name wins.
func (r *GitRepo) LatestTag(ctx context.Context, skip func(string) bool) (string, error) {
	byCommit, err := r.tagsByCommit(skip)
	if err != nil {
		return "", err
	}
	if len(byCommit) == 0 {
		return "", ErrNoTag
	}

	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", fmt.Errorf("failed to walk history: %w", err)
	}
	defer iter.Close()

	var found string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if names, ok := byCommit[c.Hash]; ok {
			sort.Strings(names)
			found = names[len(names)-1]
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", ErrNoTag
	}
	return found, nil
}

// tagsByCommit maps peeled commit hashes to tag names
func (r *GitRepo) tagsByCommit(skip func(string) bool) (map[plumbing.Hash][]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	byCommit := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if skip != nil && skip(name) {
			return nil
		}

		hash := ref.Hash()
		// annotated tags point at a tag object, peel it to the commit
		if tag, err := r.repo.TagObject(hash); err == nil {
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			hash = c.Hash
		}
		byCommit[hash] = append(byCommit[hash], name)
		return nil
	})
	return byCommit, err
}

// WalkTree calls fn for every blob of the HEAD tree in path order.
// Submodules are not included.
func (r *GitRepo) WalkTree(ctx context.Context, fn func(TreeFile) error) error {
	c, err := r.headCommit()
	if err != nil {
		return err
	}

	tree, err := c.Tree()
	if err != nil {
		return fmt.Errorf("failed to read HEAD tree: %w", err)
	}

	return tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		mode, err := f.Mode.ToOSFileMode()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}

		tf := TreeFile{
			Path: f.Name,
			Mode: mode,
			Size: f.Size,
		}

		if f.Mode == filemode.Symlink {
			target, err := f.Contents()
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			tf.LinkTarget = target
			tf.Size = 0
		} else {
			file := f
			tf.open = file.Reader
		}

		return fn(tf)
	})
}

func (r *GitRepo) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	return c, nil
}
