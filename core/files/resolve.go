package files

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const globMeta = "*?[{"

// Resolve expands patterns into a sorted, de-duplicated list of file paths.
//
// An existing path is always taken literally. A literal path that does not exist is
// kept so the caller can report it with the other input problems. A pattern that matches nothing is an error; all such errors are
// returned together.
func Resolve(afs afero.Fs, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var errs error

	add := func(p string) {
		seen[filepath.Clean(p)] = struct{}{}
	}

	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}

		if !IsPattern(p) || exists(afs, p) {
			entries, err := expandLiteral(afs, p)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, e := range entries {
				add(e)
			}
			continue
		}

		matches, err := expandPattern(afs, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if len(matches) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("pattern %q matched no files", p))
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}

	if errs != nil {
		return nil, errs
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// exists reports whether p names an existing path. Such a path is taken literally even
// if it contains glob syntax.
func exists(afs afero.Fs, p string) bool {
	ok, err := afero.Exists(afs, p)
	return err == nil && ok
}

// IsPattern reports whether p contains glob syntax.
func IsPattern(p string) bool {
	return strings.ContainsAny(p, globMeta)
}

// expandLiteral returns p itself, or the regular files directly inside p when it is a
// directory.
func expandLiteral(afs afero.Fs, p string) ([]string, error) {
	info, err := afs.Stat(p)
	if err != nil {
		return []string{p}, nil
	}
	if !info.IsDir() {
		return []string{p}, nil
	}

	entries, err := afero.ReadDir(afs, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
	}
	var out []string
	for _, e := range entries {
		if e.Mode().IsRegular() {
			out = append(out, filepath.Join(p, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("directory %s contains no files", p)
	}
	return out, nil
}

// expandPattern walks the static prefix of pattern and returns the regular files that
// match it.
func expandPattern(afs afero.Fs, pattern string) ([]string, error) {
	slashed := path.Clean(filepath.ToSlash(pattern))
	g, err := glob.Compile(slashed, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	root := staticPrefix(slashed)
	recursive := strings.Contains(slashed, "**")
	maxDepth := depth(slashed)

	var matches []string
	walkErr := afero.Walk(afs, filepath.FromSlash(root), func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel := filepath.ToSlash(p)
		if info.IsDir() {
			if !recursive && rel != root && depth(rel) >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() && g.Match(rel) {
			matches = append(matches, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to expand %q: %w", pattern, walkErr)
	}
	return matches, nil
}

// staticPrefix returns the leading directories of pattern that contain no glob syntax.
func staticPrefix(pattern string) string {
	segs := strings.Split(pattern, "/")
	i := 0
	for i < len(segs)-1 && !IsPattern(segs[i]) {
		i++
	}
	prefix := strings.Join(segs[:i], "/")
	switch {
	case prefix == "" && strings.HasPrefix(pattern, "/"):
		return "/"
	case prefix == "":
		return "."
	default:
		return prefix
	}
}

func depth(p string) int {
	if p == "." || p == "/" {
		return 0
	}
	return strings.Count(strings.Trim(p, "/"), "/") + 1
}
