// Package workspace owns the scratch directories tasks run in and finds the
// artifacts left behind.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// scaffoldPrefix marks files the harness itself writes into a workspace.
const scaffoldPrefix = "_skillbench"

// Manager hands out one fresh working directory at a time under root.
type Manager struct {
	root    string
	owned   bool
	current string
}

// NewManager uses root as the parent of task directories, creating it if
// needed. A relative root is resolved against the current directory so
// task directories stay valid as script working directories and bind
// mount sources. An empty root means a private temporary directory that
// Close removes.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		dir, err := os.MkdirTemp("", "skillbench-work-")
		if err != nil {
			return nil, fmt.Errorf("creating workspace root: %w", err)
		}
		return &Manager{root: dir, owned: true}, nil
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root %s: %w", root, err)
	}
	return &Manager{root: root}, nil
}

func (m *Manager) Root() string { return m.root }

// Fresh discards the previous working directory and creates a new, empty,
// randomly named one.
func (m *Manager) Fresh() (string, error) {
	if err := m.Reset(); err != nil {
		return "", err
	}
	dir := filepath.Join(m.root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}
	m.current = dir
	return dir, nil
}

// Reset removes the current working directory, if any.
func (m *Manager) Reset() error {
	if m.current == "" {
		return nil
	}
	dir := m.current
	m.current = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing working directory %s: %w", dir, err)
	}
	return nil
}

// Close resets and, for a private root, removes the root too.
func (m *Manager) Close() error {
	if err := m.Reset(); err != nil {
		return err
	}
	if m.owned {
		return os.RemoveAll(m.root)
	}
	return nil
}

// IsScaffolding reports whether name is a file the harness put there.
func IsScaffolding(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, scaffoldPrefix) || strings.HasPrefix(base, ".")
}

// Scan lists regular files in dir whose extension matches ext (any file
// when ext is empty), plus any extra paths such as those a Watcher saw
// created in subdirectories. Results are sorted most recently modified
// first.
func Scan(dir, ext string, extra ...string) []string {
	ext = strings.ToLower(ext)
	type entry struct {
		path  string
		mtime time.Time
	}
	seen := map[string]bool{}
	var found []entry
	consider := func(path string) {
		if seen[path] || IsScaffolding(path) {
			return
		}
		if ext != "" && strings.ToLower(filepath.Ext(path)) != ext {
			return
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		seen[path] = true
		found = append(found, entry{path, info.ModTime()})
	}

	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			consider(filepath.Join(dir, e.Name()))
		}
	}
	for _, p := range extra {
		consider(p)
	}

	slices.SortStableFunc(found, func(a, b entry) int {
		if c := b.mtime.Compare(a.mtime); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	out := make([]string, len(found))
	for i, e := range found {
		out[i] = e.path
	}
	return out
}
