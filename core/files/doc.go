// Package files expands the file arguments of a run into concrete paths.
//
// Arguments may be literal files, directories or glob patterns. Directories contribute
// their regular files without recursing. Patterns support *, ?, [...], {a,b} and **,
// and are matched against a walk of the pattern's static prefix.
//
// # Usage
//
//	paths, err := files.Resolve(afero.NewOsFs(), []string{"dist/*.tar.gz", "CHANGELOG.md"})
package files
