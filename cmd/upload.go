package cmd

import (
	"fmt"

	"release-sync/core/config"
	"release-sync/core/files"
	"release-sync/core/github"
	"release-sync/core/logger"
	"release-sync/core/reconcile"
	"release-sync/core/report"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the upload command. Each one overrides its configuration key when set.
	uploadTag           string
	uploadRepo          string
	uploadToken         string
	uploadFiles         []string
	uploadName          string
	uploadTarget        string
	uploadDraft         bool
	uploadPrerelease    bool
	uploadConcurrency   int
	uploadMaxAttempts   int
	uploadSkipUnchanged bool
	uploadDryRun        bool
	uploadReport        string
)

// uploadCmd upserts a release and synchronizes its assets.
var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Create or reuse a release and upload files as its assets",
	Long: `Ensure the release for a tag exists, then upload every given file as a release
asset. Files may be paths, directories (their regular files) or glob patterns.

Assets with the same name are replaced. Assets that are not part of this upload are
left untouched, so several jobs can contribute to one release.

Examples:
  # Inside GitHub Actions (GITHUB_TOKEN and GITHUB_REPOSITORY come from the runner)
  release-sync upload --tag "$GITHUB_REF_NAME" dist/*.tar.gz dist/checksums.txt

  # Preview without changing anything
  release-sync upload --tag v1.2.0 --repo octo/widgets --dry-run 'dist/**'

  # Keep identical assets and write a machine readable report
  release-sync upload --tag v1.2.0 --skip-unchanged --report out/release.json dist`,
	RunE: runUpload,
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadTag, "tag", "", "Release tag (RELEASE_TAG)")
	f.StringVar(&uploadRepo, "repo", "", "Target repository as owner/name (GITHUB_REPOSITORY)")
	f.StringVar(&uploadToken, "token", "", "GitHub token (GITHUB_TOKEN)")
	f.StringArrayVar(&uploadFiles, "file", nil, "File, directory or glob pattern to upload; repeatable (RELEASE_FILES)")
	f.StringVar(&uploadName, "name", "", "Name of a newly created release; defaults to the tag (RELEASE_NAME)")
	f.StringVar(&uploadTarget, "target", "", "Commitish for a newly created tag (RELEASE_TARGET)")
	f.BoolVar(&uploadDraft, "draft", false, "Create the release as a draft (RELEASE_DRAFT)")
	f.BoolVar(&uploadPrerelease, "prerelease", false, "Mark a created release as prerelease (RELEASE_PRERELEASE)")
	f.IntVar(&uploadConcurrency, "concurrency", 0, "Parallel uploads, 1 to 8 (UPLOAD_CONCURRENCY)")
	f.IntVar(&uploadMaxAttempts, "max-attempts", 0, "Tries per network call (UPLOAD_MAX_ATTEMPTS)")
	f.BoolVar(&uploadSkipUnchanged, "skip-unchanged", false, "Keep assets whose digest matches the local file (UPLOAD_SKIP_UNCHANGED)")
	f.BoolVar(&uploadDryRun, "dry-run", false, "Print the plan without changing anything")
	f.StringVar(&uploadReport, "report", "", "Write a JSON or YAML report to this path")

	RootCmd.AddCommand(uploadCmd)
}

// applyUploadFlags overrides configuration values with the flags that were set.
// Positional arguments and --file values replace the configured file list.
func applyUploadFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	flags := cmd.Flags()
	if flags.Changed("tag") {
		cfg.Release.Tag = uploadTag
	}
	if flags.Changed("repo") {
		cfg.GitHub.Repository = uploadRepo
	}
	if flags.Changed("token") {
		cfg.GitHub.Token = uploadToken
	}
	if flags.Changed("name") {
		cfg.Release.Name = uploadName
	}
	if flags.Changed("target") {
		cfg.Release.Target = uploadTarget
	}
	if flags.Changed("draft") {
		cfg.Release.Draft = uploadDraft
	}
	if flags.Changed("prerelease") {
		cfg.Release.Prerelease = uploadPrerelease
	}
	if flags.Changed("concurrency") {
		cfg.Upload.Concurrency = uploadConcurrency
	}
	if flags.Changed("max-attempts") {
		cfg.Upload.MaxAttempts = uploadMaxAttempts
	}
	if flags.Changed("skip-unchanged") {
		cfg.Upload.SkipUnchanged = uploadSkipUnchanged
	}

	if inputs := append(append([]string(nil), args...), uploadFiles...); len(inputs) > 0 {
		cfg.Release.Files = inputs
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyUploadFlags(cmd, cfg, args)

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = l.Sync() }()
	l, runID := logger.WithRunID(l)

	repo, err := reconcile.ParseRepository(cfg.GitHub.Repository)
	if err != nil {
		return err
	}

	afs := afero.NewOsFs()
	paths, err := files.Resolve(afs, cfg.Release.Files)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve files: %v", reconcile.ErrConfiguration, err)
	}

	svc, err := github.NewService(cfg.GitHub)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	engine := reconcile.NewEngine(svc, afs, l)
	runCfg := reconcile.RunConfig{
		Repository:    repo,
		Tag:           cfg.Release.Tag,
		Files:         paths,
		Release:       cfg.Release.Options(),
		Concurrency:   cfg.Upload.Concurrency,
		Retry:         cfg.Upload.Policy(),
		SkipUnchanged: cfg.Upload.SkipUnchanged,
	}

	l.Info("Starting release sync",
		zap.String("repository", repo.String()),
		zap.String("tag", runCfg.Tag),
		zap.Int("files", len(paths)),
		zap.Bool("dry_run", uploadDryRun),
	)

	if uploadDryRun {
		plan, err := engine.Plan(ctx, runCfg)
		if err != nil {
			return fmt.Errorf("failed to plan release sync: %w", err)
		}
		report.RenderPlan(cmd.OutOrStdout(), plan)
		if uploadReport != "" {
			if err := report.WriteFile(afs, uploadReport, plan); err != nil {
				return err
			}
		}
		l.Info("Dry-run mode: No changes were made.")
		return nil
	}

	outcome, runErr := engine.Run(ctx, runCfg)
	if outcome != nil {
		report.RenderOutcome(cmd.OutOrStdout(), outcome)
		if uploadReport != "" {
			if err := report.WriteFile(afs, uploadReport, report.NewDocument(runID, outcome)); err != nil {
				l.Error("Failed to write report", zap.String("path", uploadReport), zap.Error(err))
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("release sync aborted: %w", runErr)
	}
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("%d of %d assets failed: %w", len(outcome.Failed()), len(outcome.Results), err)
	}

	l.Info("Release synchronized",
		zap.Int64("release_id", outcome.Release.ID),
		zap.String("url", outcome.Release.HTMLURL),
	)
	return nil
}
