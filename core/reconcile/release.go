package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// FindRelease looks up the release for tag by exact match.
// A missing release is reported as an error wrapping ErrNotFound; every other failure
// is returned as is so that callers never mistake an outage for an absent release.
func FindRelease(ctx context.Context, svc Service, repo Repository, tag string, policy RetryPolicy) (Release, error) {
	policy = policy.normalized()

	var release Release
	_, err := policy.Do(ctx, func(int) error {
		callCtx, cancel := context.WithTimeout(ctx, policy.CallTimeout)
		defer cancel()
		var err error
		release, err = svc.FindReleaseByTag(callCtx, repo, tag)
		return classifyCallError(ctx, "find release", err)
	}, nil)
	if err != nil {
		return Release{}, fmt.Errorf("failed to find release %s@%s: %w", repo, tag, err)
	}
	if release.Tag != tag {
		return Release{}, fmt.Errorf("release %d has tag %q, want %q: %w", release.ID, release.Tag, tag, ErrNotFound)
	}
	if release.Repository == (Repository{}) {
		release.Repository = repo
	}
	return release, nil
}

// EnsureRelease returns the release for tag, creating it when absent.
// Losing a creation race to a concurrent run is not an error: the winner's release is
// fetched and returned. created reports whether this call created the release.
func EnsureRelease(ctx context.Context, svc Service, repo Repository, tag string, opts ReleaseOptions, policy RetryPolicy) (release Release, created bool, err error) {
	policy = policy.normalized()

	release, err = FindRelease(ctx, svc, repo, tag, policy)
	if err == nil {
		return release, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Release{}, false, err
	}

	if opts.Name == "" {
		opts.Name = tag
	}

	_, err = policy.Do(ctx, func(int) error {
		callCtx, cancel := context.WithTimeout(ctx, policy.CallTimeout)
		defer cancel()
		var err error
		release, err = svc.CreateRelease(callCtx, repo, tag, opts)
		return classifyCallError(ctx, "create release", err)
	}, nil)
	switch {
	case err == nil:
		if release.Repository == (Repository{}) {
			release.Repository = repo
		}
		return release, true, nil
	case errors.Is(err, ErrReleaseExists):
		release, err = FindRelease(ctx, svc, repo, tag, policy)
		if err != nil {
			return Release{}, false, fmt.Errorf("release %s@%s was created concurrently but could not be fetched: %w", repo, tag, err)
		}
		return release, false, nil
	default:
		return Release{}, false, fmt.Errorf("failed to create release %s@%s: %w", repo, tag, err)
	}
}
