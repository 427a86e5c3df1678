// Package reconcile upserts a tagged release and synchronizes local files as its assets.
//
// A run is safe to repeat after a partial failure: every desired asset ends up on the
// release exactly once, existing assets outside the desired set are never touched, and
// the release itself is reused rather than recreated.
//
// # Architecture
//
// The package consists of small components wired together by the Engine:
//
// 1. PlanAssets: maps local paths to asset names, sizes, digests and media types. All
// input problems are reported together before any network call.
//
// 2. FindRelease / EnsureRelease: locate the release by exact tag, drafts included, and
// create it when absent. A lost creation race is resolved by fetching the winner's release.
//
// 3. BuildPlan: diffs the desired set against the current assets into upload, replace
// and skip actions.
//
// 4. Uploader: executes one action. Transient failures are retried with bounded
// exponential backoff, name conflicts caused by concurrent actors are turned into
// replacements, and an upload whose response was lost is adopted instead of duplicated.
//
// The platform is reached through the Service interface only; see core/github for the
// GitHub implementation.
//
// # Usage Example
//
//	engine := reconcile.NewEngine(githubService, afero.NewOsFs(), log)
//	outcome, err := engine.Run(ctx, reconcile.RunConfig{
//	    Repository: repo,
//	    Tag:        "v1.2.0",
//	    Files:      []string{"dist/app-linux-amd64.tar.gz"},
//	})
//	if err != nil {
//	    return err
//	}
//	return outcome.Err()
package reconcile
