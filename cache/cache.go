// Package cache manages on-disk cache directories for transient binary
// data — files fetched through storage.HTTPSource, Parquet objects from the
// Geoscience Object API, and similar — partitioned by Environment and an
// arbitrary caller-chosen scope string.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/evoplatform/sdk-go/evo"
)

// gitignoreContents marks every cache root as untracked, so a workspace
// that happens to sit inside a caller's git repository never accidentally
// commits cached binary data.
const gitignoreContents = "*\n"

// Cache manages a root cache directory. The zero value is not usable;
// construct with New.
type Cache struct {
	root string
}

// New resolves root to an absolute path. If mkdir is true, the directory
// (and any missing parents) is created, along with a .gitignore marking
// it untracked; otherwise root must already exist and be a directory.
func New(root string, mkdir bool) (*Cache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cache: resolving root: %w", err)
	}

	if mkdir {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("cache: creating root: %w", err)
		}

		if err := writeGitignore(abs); err != nil {
			return nil, err
		}
	} else {
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}

		if !info.IsDir() {
			return nil, fmt.Errorf("cache: %q is not a directory", abs)
		}
	}

	return &Cache{root: abs}, nil
}

func writeGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(gitignoreContents), 0o644)
}

// Root returns the absolute path to the cache root.
func (c *Cache) Root() string {
	return c.root
}

// GetLocation returns the absolute path to the cache directory for env and
// scope, creating it if it does not already exist. The directory name is
// uuid5(env.WorkspaceID, scope), so the same (workspace, scope) pair
// always maps to the same location.
func (c *Cache) GetLocation(env evo.Environment, scope string) (string, error) {
	id := uuid.NewSHA1(env.WorkspaceID, []byte(scope))
	location := filepath.Join(c.root, id.String())

	info, err := os.Stat(location)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("cache: %q is not a directory", location)
		}

		return location, nil
	case !os.IsNotExist(err):
		return "", fmt.Errorf("cache: %w", err)
	}

	if err := os.Mkdir(location, 0o755); err != nil {
		return "", fmt.Errorf("cache: creating cache location: %w", err)
	}

	return location, nil
}

// ClearCache removes a cache subtree. env and scope must both be nil or
// both be set: if both are nil, every subtree under the root is removed
// (the root itself is preserved); otherwise only the (env, scope)
// location is removed.
func (c *Cache) ClearCache(env *evo.Environment, scope *string) error {
	if (env == nil) != (scope == nil) {
		return fmt.Errorf("%w: environment and scope must be specified together", evo.ErrClientUsage)
	}

	var targets []string

	if env == nil {
		entries, err := os.ReadDir(c.root)
		if err != nil {
			return fmt.Errorf("cache: listing root: %w", err)
		}

		for _, entry := range entries {
			targets = append(targets, filepath.Join(c.root, entry.Name()))
		}
	} else {
		location, err := c.GetLocation(*env, *scope)
		if err != nil {
			return err
		}

		targets = []string{location}
	}

	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("cache: removing %q: %w", target, err)
		}
	}

	return nil
}

// TemporaryLocation creates a temporary directory under the cache root and
// returns its path along with a cleanup function the caller must invoke
// (typically via defer) once it is no longer needed. Go has no context
// manager, so the deferred cleanup stands in for the original's `with`
// block.
func (c *Cache) TemporaryLocation() (string, func() error, error) {
	dir, err := os.MkdirTemp(c.root, "tmp-")
	if err != nil {
		return "", nil, fmt.Errorf("cache: creating temporary location: %w", err)
	}

	cleanup := func() error {
		return os.RemoveAll(dir)
	}

	return dir, cleanup, nil
}
