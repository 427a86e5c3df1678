// Package github implements reconcile.Service on top of the GitHub REST API.
//
// It wraps the go-github client with a token-authenticated transport and maps GitHub
// failures onto the error taxonomy of core/reconcile, so the reconciliation engine never
// sees an SDK type.
//
// # Error Mapping
//
//   - 401 and 403: reconcile.ErrAuth
//   - 404: reconcile.ErrNotFound
//   - 422 already_exists: reconcile.ErrReleaseExists or reconcile.ErrAssetNameConflict
//   - primary and secondary rate limits, 429: *reconcile.RateLimitedError
//   - 5xx and transport failures: *reconcile.TransientError
//
// # Usage
//
//	svc, err := github.NewService(cfg.GitHub)
//	release, err := svc.FindReleaseByTag(ctx, repo, "v1.2.0")
package github
