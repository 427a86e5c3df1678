package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfiguration marks input problems detected before any remote call.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound is returned by a Service when a release or asset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuth is returned by a Service when the credentials are missing, invalid or lack permission.
	ErrAuth = errors.New("authentication failed")

	// ErrReleaseExists is returned by Service.CreateRelease when a release for the tag already exists.
	ErrReleaseExists = errors.New("release already exists")

	// ErrAssetNameConflict is returned by Service.UploadAsset when an asset with the name already exists.
	ErrAssetNameConflict = errors.New("asset name conflict")
)

// TransientError wraps a failure that may succeed when retried
// (timeouts, 5xx responses, dropped connections).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RateLimitedError is a transient failure carrying the platform's retry-after hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter.Round(time.Second), e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// DuplicateAssetNameError reports local files that map to the same asset name.
type DuplicateAssetNameError struct {
	Name  string
	Paths []string
}

func (e *DuplicateAssetNameError) Error() string {
	return fmt.Sprintf("duplicate asset name %q from %s", e.Name, strings.Join(e.Paths, ", "))
}

// UnreadableFileError reports a local path that cannot be uploaded.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// ConfigurationError groups every input problem found while planning.
type ConfigurationError struct {
	Problems []error
}

func (e *ConfigurationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

// Unwrap exposes ErrConfiguration and every problem to errors.Is / errors.As.
func (e *ConfigurationError) Unwrap() []error {
	return append([]error{ErrConfiguration}, e.Problems...)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	var limited *RateLimitedError
	return errors.As(err, &transient) || errors.As(err, &limited)
}

// retryAfter returns the rate-limit hint carried by err, if any.
func retryAfter(err error) time.Duration {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return limited.RetryAfter
	}
	return 0
}

// classifyCallError turns a per-call deadline into a transient failure while the parent
// context is still alive. Cancellation of the parent is returned untouched.
func classifyCallError(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && !IsRetryable(err) {
		return &TransientError{Op: op, Err: err}
	}
	return err
}
