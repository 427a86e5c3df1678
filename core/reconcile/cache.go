package reconcile

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// assetLookup resolves asset names to their current remote state during execution.
// Nothing is cached between calls because the list is mutated concurrently by other
// actors; singleflight only coalesces lookups that are in flight at the same moment,
// so N uploads recovering from conflicts at once cost one listing instead of N.
type assetLookup struct {
	svc     Service
	repo    Repository
	release int64
	policy  RetryPolicy
	sf      singleflight.Group
}

func newAssetLookup(svc Service, repo Repository, releaseID int64, policy RetryPolicy) *assetLookup {
	return &assetLookup{
		svc:     svc,
		repo:    repo,
		release: releaseID,
		policy:  policy.normalized(),
	}
}

// list returns the current assets of the release.
func (l *assetLookup) list(ctx context.Context) ([]Asset, error) {
	key := strconv.FormatInt(l.release, 10)
	result, err, _ := l.sf.Do(key, func() (interface{}, error) {
		var assets []Asset
		_, err := l.policy.Do(ctx, func(int) error {
			callCtx, cancel := context.WithTimeout(ctx, l.policy.CallTimeout)
			defer cancel()
			var err error
			assets, err = l.svc.ListAssets(callCtx, l.repo, l.release)
			return classifyCallError(ctx, "list assets", err)
		}, nil)
		return assets, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]Asset), nil
}

// find returns the asset named name, if present.
func (l *assetLookup) find(ctx context.Context, name string) (Asset, bool, error) {
	assets, err := l.list(ctx)
	if err != nil {
		return Asset{}, false, err
	}
	for _, a := range assets {
		if a.Name == name {
			return a, true, nil
		}
	}
	return Asset{}, false, nil
}
