package reconcile

import "time"

// ReleaseConfig holds the release to upsert and the files to attach.
type ReleaseConfig struct {
	// Tag is the git tag identifying the release.
	Tag string `mapstructure:"tag" default:""`
	// Name is the display name used when the release is created. Defaults to the tag.
	Name string `mapstructure:"name" default:""`
	// Draft creates the release unpublished.
	Draft bool `mapstructure:"draft" default:"false"`
	// Prerelease marks a created release as a prerelease.
	Prerelease bool `mapstructure:"prerelease" default:"false"`
	// Target is the commitish a created tag points at. Empty means the default branch.
	Target string `mapstructure:"target" default:""`
	// Files is a comma separated list of files, directories or glob patterns.
	Files []string `mapstructure:"files" default:""`
}

// Options returns the creation options for a missing release.
func (c ReleaseConfig) Options() ReleaseOptions {
	return ReleaseOptions{
		Name:            c.Name,
		TargetCommitish: c.Target,
		Draft:           c.Draft,
		Prerelease:      c.Prerelease,
	}
}

// UploadConfig holds execution limits for asset uploads.
type UploadConfig struct {
	// Concurrency is the number of assets uploaded in parallel (1..8).
	Concurrency int `mapstructure:"concurrency" default:"2"`
	// MaxAttempts is the number of tries per network call.
	MaxAttempts int `mapstructure:"max_attempts" default:"4"`
	// InitialBackoffMs is the wait before the first retry in milliseconds.
	InitialBackoffMs int `mapstructure:"initial_backoff_ms" default:"1000"`
	// MaxBackoffMs caps the wait between retries in milliseconds.
	MaxBackoffMs int `mapstructure:"max_backoff_ms" default:"30000"`
	// CallTimeoutSeconds bounds metadata calls.
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds" default:"30"`
	// TimeoutSeconds bounds a single asset upload.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"600"`
	// MaxRateLimitWaitSeconds is the longest rate-limit reset the run waits for.
	MaxRateLimitWaitSeconds int `mapstructure:"max_rate_limit_wait_seconds" default:"120"`
	// SkipUnchanged keeps existing assets whose digest matches the local file.
	SkipUnchanged bool `mapstructure:"skip_unchanged" default:"false"`
}

// Policy converts the configuration into a retry policy. Unset values fall back to
// DefaultRetryPolicy.
func (c UploadConfig) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxInterval:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Multiplier:      DefaultRetryPolicy().Multiplier,
		CallTimeout:     time.Duration(c.CallTimeoutSeconds) * time.Second,
		UploadTimeout:   time.Duration(c.TimeoutSeconds) * time.Second,

		MaxRateLimitWait: time.Duration(c.MaxRateLimitWaitSeconds) * time.Second,
	}.normalized()
}
