package reconcile

import (
	"context"
	"io"
)

// Service is the capability interface to the hosting platform's release API.
// Implementations translate platform failures into the errors of this package:
// ErrNotFound, ErrAuth, ErrReleaseExists, ErrAssetNameConflict, *TransientError and
// *RateLimitedError. Anything else is treated as permanent.
type Service interface {
	// FindReleaseByTag returns the release whose tag equals tag exactly, drafts included.
	// It returns an error wrapping ErrNotFound if no such release exists.
	FindReleaseByTag(ctx context.Context, repo Repository, tag string) (Release, error)

	// CreateRelease creates a release for tag. It returns an error wrapping
	// ErrReleaseExists if another actor created it first.
	CreateRelease(ctx context.Context, repo Repository, tag string, opts ReleaseOptions) (Release, error)

	// ListAssets returns every asset currently attached to the release.
	ListAssets(ctx context.Context, repo Repository, releaseID int64) ([]Asset, error)

	// DeleteAsset removes an asset. It returns an error wrapping ErrNotFound if the
	// asset is already gone.
	DeleteAsset(ctx context.Context, repo Repository, assetID int64) error

	// UploadAsset streams req.Content as a new asset. It returns an error wrapping
	// ErrAssetNameConflict if an asset named req.Name already exists.
	UploadAsset(ctx context.Context, repo Repository, releaseID int64, req UploadRequest) (Asset, error)
}

// AssetNamer is implemented by services that store uploads under a normalized name.
// Desired assets are planned under the stored name so later runs match them.
type AssetNamer interface {
	NormalizeAssetName(name string) string
}

func namerOf(svc Service) AssetNamer {
	if n, ok := svc.(AssetNamer); ok {
		return n
	}
	return nil
}

// UploadRequest describes the content of one asset upload.
type UploadRequest struct {
	Name        string
	Content     io.Reader
	Size        int64
	ContentType string
}
