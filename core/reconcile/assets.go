package reconcile

import (
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

const defaultContentType = "application/octet-stream"

// PlanAssets computes the desired asset set from resolved local file paths.
// Every path is validated; all problems are returned together in a *ConfigurationError
// so that a doomed run is rejected before the platform is contacted.
// A non-nil namer maps file base names to the names the platform stores; duplicates
// are detected on the mapped names.
func PlanAssets(fs afero.Fs, paths []string, namer AssetNamer) (DesiredAssetSet, error) {
	var (
		problems []error
		assets   []DesiredAsset
		byName   = make(map[string][]string)
		order    []string
	)

	for _, p := range paths {
		name := filepath.Base(p)
		if namer != nil {
			name = namer.NormalizeAssetName(name)
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], p)

		asset, err := describeFile(fs, p)
		if err != nil {
			problems = append(problems, &UnreadableFileError{Path: p, Err: err})
			continue
		}
		asset.Name = name
		assets = append(assets, asset)
	}

	for _, name := range order {
		if len(byName[name]) > 1 {
			problems = append(problems, &DuplicateAssetNameError{Name: name, Paths: byName[name]})
		}
	}

	if len(problems) > 0 {
		return DesiredAssetSet{}, &ConfigurationError{Problems: problems}
	}
	return NewDesiredAssetSet(assets...), nil
}

// describeFile stats, sniffs and hashes one file.
func describeFile(fs afero.Fs, path string) (DesiredAsset, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return DesiredAsset{}, err
	}
	if info.IsDir() {
		return DesiredAsset{}, errors.New("is a directory")
	}
	if !info.Mode().IsRegular() {
		return DesiredAsset{}, errors.New("not a regular file")
	}

	f, err := fs.Open(path)
	if err != nil {
		return DesiredAsset{}, err
	}
	defer f.Close()

	contentType := defaultContentType
	if mt, err := mimetype.DetectReader(f); err == nil && mt != nil {
		contentType = mt.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return DesiredAsset{}, fmt.Errorf("failed to rewind: %w", err)
	}

	dgst, err := digest.FromReader(f)
	if err != nil {
		return DesiredAsset{}, fmt.Errorf("failed to hash: %w", err)
	}

	return DesiredAsset{
		Path:        path,
		Size:        info.Size(),
		Digest:      dgst,
		ContentType: contentType,
	}, nil
}
