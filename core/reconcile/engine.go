package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency is the number of asset actions executed in parallel by default.
	DefaultConcurrency = 2

	// MaxConcurrency caps parallel asset actions.
	MaxConcurrency = 8
)

// RunConfig describes one reconciliation run.
type RunConfig struct {
	// Repository is the target repository.
	Repository Repository

	// Tag identifies the release.
	Tag string

	// Files are resolved local file paths.
	Files []string

	// Release controls how a missing release is created.
	Release ReleaseOptions

	// Concurrency bounds parallel asset actions. Zero means DefaultConcurrency.
	Concurrency int

	// Retry bounds every remote call.
	Retry RetryPolicy

	// SkipUnchanged enables the digest comparison of BuildPlan.
	SkipUnchanged bool
}

func (c RunConfig) validate() error {
	var problems []error
	if c.Repository.Owner == "" || c.Repository.Name == "" {
		problems = append(problems, errors.New("repository is required"))
	}
	if strings.TrimSpace(c.Tag) == "" {
		problems = append(problems, errors.New("tag is required"))
	}
	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (c RunConfig) concurrency() int {
	switch {
	case c.Concurrency <= 0:
		return DefaultConcurrency
	case c.Concurrency > MaxConcurrency:
		return MaxConcurrency
	default:
		return c.Concurrency
	}
}

// Engine drives a release reconciliation against a Service.
type Engine struct {
	svc    Service
	fs     afero.Fs
	logger *zap.Logger
}

// NewEngine creates an engine. fs is used to read the local files; logger may be nil.
func NewEngine(svc Service, fs afero.Fs, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{svc: svc, fs: fs, logger: logger}
}

// Plan computes what Run would do without mutating anything. A missing release is not
// created; the returned plan then has ReleaseExists set to false and uploads every asset.
func (e *Engine) Plan(ctx context.Context, cfg RunConfig) (*Plan, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	policy := cfg.Retry.normalized()

	desired, err := PlanAssets(e.fs, cfg.Files, namerOf(e.svc))
	if err != nil {
		return nil, err
	}

	release, err := FindRelease(ctx, e.svc, cfg.Repository, cfg.Tag, policy)
	switch {
	case err == nil:
		release.Assets, err = newAssetLookup(e.svc, release.Repository, release.ID, policy).list(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets of release %d: %w", release.ID, err)
		}
	case errors.Is(err, ErrNotFound):
		name := cfg.Release.Name
		if name == "" {
			name = cfg.Tag
		}
		release = Release{
			Repository: cfg.Repository,
			Tag:        cfg.Tag,
			Name:       name,
			Draft:      cfg.Release.Draft,
			Prerelease: cfg.Release.Prerelease,
		}
	default:
		return nil, err
	}

	plan := BuildPlan(release, desired, PlanOptions{SkipUnchanged: cfg.SkipUnchanged})
	return &plan, nil
}

// Run upserts the release and reconciles its assets with the configured files.
//
// Input problems abort the run before the platform is contacted, and a release that
// cannot be ensured or listed aborts it as well. Once execution starts, asset actions
// are isolated: a failed action never cancels its siblings, and every result is
// collected in the returned Outcome. The returned error is non-nil only when the run
// aborted or its context was cancelled; per-asset failures are reported by Outcome.Err.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*Outcome, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	policy := cfg.Retry.normalized()
	log := e.logger.With(
		zap.String("repository", cfg.Repository.String()),
		zap.String("tag", cfg.Tag),
	)

	desired, err := PlanAssets(e.fs, cfg.Files, namerOf(e.svc))
	if err != nil {
		return nil, err
	}
	log.Debug("Planned local assets", zap.Int("count", desired.Len()))

	release, created, err := EnsureRelease(ctx, e.svc, cfg.Repository, cfg.Tag, cfg.Release, policy)
	if err != nil {
		return nil, err
	}
	log.Info("Release ready", zap.Int64("release_id", release.ID), zap.Bool("created", created))

	lookup := newAssetLookup(e.svc, release.Repository, release.ID, policy)
	release.Assets, err = lookup.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets of release %d: %w", release.ID, err)
	}

	plan := BuildPlan(release, desired, PlanOptions{SkipUnchanged: cfg.SkipUnchanged})
	log.Info("Plan built",
		zap.Int("uploads", plan.Summary.Uploads),
		zap.Int("replaces", plan.Summary.Replaces),
		zap.Int("skips", plan.Summary.Skips),
		zap.Int("untouched", plan.Summary.Untouched),
	)

	results := e.execute(ctx, plan, policy, cfg.concurrency(), log)

	outcome := &Outcome{Release: release, Created: created, Results: results}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	if assets, err := lookup.list(ctx); err != nil {
		log.Warn("Failed to refresh release assets", zap.Error(err))
	} else {
		outcome.Release.Assets = assets
	}

	log.Info("Reconciliation completed",
		zap.Int("succeeded", len(outcome.Succeeded())),
		zap.Int("failed", len(outcome.Failed())),
	)
	return outcome, nil
}

// execute runs the plan's actions with bounded parallelism. Results keep plan order.
func (e *Engine) execute(ctx context.Context, plan Plan, policy RetryPolicy, limit int, log *zap.Logger) []AssetResult {
	uploader := NewUploader(e.svc, e.fs, plan.Release, policy, log)
	results := make([]AssetResult, len(plan.Actions))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, action := range plan.Actions {
		g.Go(func() error {
			results[i] = uploader.Execute(ctx, action)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
