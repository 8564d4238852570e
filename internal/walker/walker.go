// Package walker enumerates the files and directories of a local tree that take part in a publish.
package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Filter selects entries by gitignore-style patterns matched against the path relative to the walk root.
// A leading "/" anchors a pattern at the root and a trailing "/" restricts it to directories.
type Filter struct {
	// Only restricts files to those matching at least one pattern. Directories are never filtered by Only.
	Only []string `mapstructure:"only" yaml:"only"`
	// Except drops matching files and prunes matching directories with everything below them.
	Except []string `mapstructure:"except" yaml:"except"`
	// Files restricts files to these exact slash separated relative paths. No pattern syntax applies.
	Files []string `mapstructure:"-" yaml:"-"`
}

// Merge returns a filter carrying the patterns of both f and other
func (f Filter) Merge(other Filter) Filter {
	return Filter{
		Only:   append(append([]string(nil), f.Only...), other.Only...),
		Except: append(append([]string(nil), f.Except...), other.Except...),
		Files:  append(append([]string(nil), f.Files...), other.Files...),
	}
}

// Restricted reports whether the filter limits the set of files
func (f Filter) Restricted() bool {
	return len(f.Only) > 0 || len(f.Files) > 0
}

type matcher struct {
	only   *gitignore.GitIgnore
	except *gitignore.GitIgnore
	files  map[string]struct{}
}

func (f Filter) compile() *matcher {
	m := &matcher{}
	if len(f.Only) > 0 {
		m.only = gitignore.CompileIgnoreLines(f.Only...)
	}
	if len(f.Except) > 0 {
		m.except = gitignore.CompileIgnoreLines(f.Except...)
	}
	if len(f.Files) > 0 {
		m.files = make(map[string]struct{}, len(f.Files))
		for _, file := range f.Files {
			m.files[strings.TrimPrefix(file, "/")] = struct{}{}
		}
	}
	return m
}

func (m *matcher) excluded(rel string, isDir bool) bool {
	if m.except == nil {
		return false
	}
	if isDir {
		rel += "/"
	}
	return m.except.MatchesPath(rel)
}

func (m *matcher) included(rel string) bool {
	if m.files != nil {
		if _, ok := m.files[rel]; !ok {
			return false
		}
	}
	if m.only == nil {
		return true
	}
	return m.only.MatchesPath(rel)
}

// FindFiles returns the absolute paths of every file below root accepted by filter, sorted
func FindFiles(root string, filter Filter) ([]string, error) {
	files, _, err := walk(root, filter)
	return files, err
}

// FindDirectories returns the absolute paths of every directory below root (root excluded) not pruned by filter, sorted
func FindDirectories(root string, filter Filter) ([]string, error) {
	_, dirs, err := walk(root, filter)
	return dirs, err
}

// Find returns both the files and the directories below root, as FindFiles and FindDirectories do
func Find(root string, filter Filter) (files []string, dirs []string, err error) {
	return walk(root, filter)
}

func walk(root string, filter Filter) ([]string, []string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve walk root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("walk root: %w", err)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("walk root %q is not a directory", root)
	}

	m := filter.compile()
	files := make([]string, 0)
	dirs := make([]string, 0)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			// symlinked files are published by content, symlinked directories are not followed
			target, err := os.Stat(path)
			if err != nil {
				return nil
			}
			if target.IsDir() {
				return nil
			}
		}

		if isDir {
			if m.excluded(rel, true) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}

		if m.excluded(rel, false) || !m.included(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}
