package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Uploader executes planned actions against one release.
// It is safe for concurrent use by multiple goroutines, one action each.
type Uploader struct {
	svc     Service
	fs      afero.Fs
	release Release
	policy  RetryPolicy
	lookup  *assetLookup
	logger  *zap.Logger
}

// NewUploader creates an uploader for release.
func NewUploader(svc Service, fs afero.Fs, release Release, policy RetryPolicy, logger *zap.Logger) *Uploader {
	policy = policy.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		svc:     svc,
		fs:      fs,
		release: release,
		policy:  policy,
		lookup:  newAssetLookup(svc, release.Repository, release.ID, policy),
		logger:  logger,
	}
}

// Execute performs one action and reports its terminal state. It never panics on
// remote failures; they are returned inside the result.
func (u *Uploader) Execute(ctx context.Context, action Action) AssetResult {
	result := AssetResult{
		Name:   action.Name,
		Action: action.Type,
		Size:   action.Asset.Size,
	}
	log := u.logger.With(zap.String("asset", action.Name), zap.String("action", string(action.Type)))

	fail := func(err error) AssetResult {
		result.Status = StatusFailed
		result.Err = err
		log.Error("Asset action failed", zap.Int("attempts", result.Attempts), zap.Error(err))
		return result
	}

	switch action.Type {
	case ActionSkip:
		result.Status = StatusSkipped
		result.AssetID = action.ExistingID
		log.Info("Asset unchanged, skipping", zap.String("reason", action.Reason))
		return result

	case ActionReplace:
		attempts, err := u.deleteAsset(ctx, log, action.ExistingID)
		result.Attempts += attempts
		if err != nil {
			return fail(fmt.Errorf("failed to delete existing asset %d: %w", action.ExistingID, err))
		}
		asset, attempts, _, err := u.upload(ctx, log, action.Asset)
		result.Attempts += attempts
		if err != nil {
			return fail(err)
		}
		result.Status = StatusReplaced
		result.AssetID = asset.ID

	case ActionUpload:
		asset, attempts, recovered, err := u.upload(ctx, log, action.Asset)
		result.Attempts += attempts
		if err != nil {
			return fail(err)
		}
		result.Status = StatusCreated
		if recovered {
			result.Status = StatusReplaced
		}
		result.AssetID = asset.ID

	default:
		return fail(fmt.Errorf("unknown action type %q", action.Type))
	}

	log.Info("Asset uploaded",
		zap.Int64("asset_id", result.AssetID),
		zap.String("status", string(result.Status)),
		zap.Int("attempts", result.Attempts),
	)
	return result
}

// deleteAsset removes an asset, treating an already missing asset as success.
func (u *Uploader) deleteAsset(ctx context.Context, log *zap.Logger, id int64) (int, error) {
	return u.policy.Do(ctx, func(int) error {
		return u.deleteOnce(ctx, id)
	}, u.notify(log, "delete"))
}

func (u *Uploader) deleteOnce(ctx context.Context, id int64) error {
	callCtx, cancel := context.WithTimeout(ctx, u.policy.CallTimeout)
	defer cancel()
	err := u.svc.DeleteAsset(callCtx, u.release.Repository, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return classifyCallError(ctx, "delete asset", err)
}

// upload uploads a fresh asset, converting name conflicts raised by concurrent actors
// into replacements. recovered reports whether a conflicting asset was removed.
func (u *Uploader) upload(ctx context.Context, log *zap.Logger, want DesiredAsset) (asset Asset, attempts int, recovered bool, err error) {
	for round := 1; ; round++ {
		var n int
		asset, n, err = u.uploadOnce(ctx, log, want)
		attempts += n
		if err == nil {
			return asset, attempts, recovered, nil
		}
		if !errors.Is(err, ErrAssetNameConflict) {
			return Asset{}, attempts, recovered, fmt.Errorf("failed to upload %s: %w", want.Name, err)
		}
		if round >= u.policy.MaxAttempts {
			return Asset{}, attempts, recovered, fmt.Errorf("failed to upload %s after %d conflict rounds: %w", want.Name, round, err)
		}

		existing, found, lerr := u.lookup.find(ctx, want.Name)
		if lerr != nil {
			return Asset{}, attempts, recovered, fmt.Errorf("failed to resolve conflicting asset %s: %w", want.Name, lerr)
		}
		if !found {
			return Asset{}, attempts, recovered, fmt.Errorf("failed to upload %s: no listed asset carries the conflicting name, "+
				"the platform may store it under a different name: %w", want.Name, err)
		}
		log.Warn("Asset created concurrently, replacing it", zap.Int64("conflicting_id", existing.ID))
		n, derr := u.deleteAsset(ctx, log, existing.ID)
		attempts += n
		if derr != nil {
			return Asset{}, attempts, recovered, fmt.Errorf("failed to delete conflicting asset %d: %w", existing.ID, derr)
		}
		recovered = true
	}
}

// uploadOnce streams the file with retries. A retry that follows an ambiguous failure
// first checks by name whether the previous attempt landed, so a lost response never
// produces a second copy.
func (u *Uploader) uploadOnce(ctx context.Context, log *zap.Logger, want DesiredAsset) (Asset, int, error) {
	var (
		asset     Asset
		ambiguous bool
	)

	attempts, err := u.policy.Do(ctx, func(attempt int) error {
		if ambiguous {
			landed, ok, err := u.checkLanded(ctx, want)
			if err != nil {
				return err
			}
			if ok {
				log.Info("Previous upload attempt succeeded, adopting asset", zap.Int64("asset_id", landed.ID))
				asset = landed
				return nil
			}
		}

		f, err := u.fs.Open(want.Path)
		if err != nil {
			return &UnreadableFileError{Path: want.Path, Err: err}
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return &UnreadableFileError{Path: want.Path, Err: err}
		}
		if info.Size() != want.Size {
			return fmt.Errorf("%s changed size since planning (%d -> %d bytes)", want.Path, want.Size, info.Size())
		}

		callCtx, cancel := context.WithTimeout(ctx, u.policy.UploadTimeout)
		defer cancel()
		asset, err = u.svc.UploadAsset(callCtx, u.release.Repository, u.release.ID, UploadRequest{
			Name:        want.Name,
			Content:     f,
			Size:        want.Size,
			ContentType: want.ContentType,
		})
		err = classifyCallError(ctx, "upload asset", err)
		if IsRetryable(err) {
			ambiguous = true
		}
		return err
	}, u.notify(log, "upload"))

	return asset, attempts, err
}

// checkLanded looks for an asset left behind by an earlier attempt. A complete asset
// whose digest matches the local file is returned with ok=true; anything else under the
// name, including an asset without a reported digest, is deleted so the next upload
// does not conflict with it.
func (u *Uploader) checkLanded(ctx context.Context, want DesiredAsset) (Asset, bool, error) {
	existing, found, err := u.lookup.find(ctx, want.Name)
	if err != nil || !found {
		return Asset{}, false, err
	}
	if existing.State == AssetUploaded &&
		existing.Size == want.Size &&
		existing.Digest != "" &&
		existing.Digest == want.Digest {
		return existing, true, nil
	}
	return Asset{}, false, u.deleteOnce(ctx, existing.ID)
}

func (u *Uploader) notify(log *zap.Logger, op string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		log.Warn("Retrying after transient failure",
			zap.String("operation", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
