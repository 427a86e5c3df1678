package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"release-sync/core/reconcile"

	gogithub "github.com/google/go-github/v73/github"
)

// mapError translates a go-github failure into the reconcile error taxonomy.
// conflict is the sentinel reported for a 422 already_exists response, if any.
func mapError(ctx context.Context, op string, err error, conflict error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return &reconcile.RateLimitedError{RetryAfter: time.Until(rateErr.Rate.Reset.Time), Err: err}
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &reconcile.RateLimitedError{RetryAfter: abuseErr.GetRetryAfter(), Err: err}
	}

	var respErr *gogithub.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		// Connection reset, DNS failure, per-call deadline.
		return &reconcile.TransientError{Op: op, Err: err}
	}

	status := respErr.Response.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", op, reconcile.ErrAuth, respErr.Message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, reconcile.ErrNotFound)
	case status == http.StatusUnprocessableEntity && conflict != nil && alreadyExists(respErr):
		return fmt.Errorf("%s: %w", op, conflict)
	case status == http.StatusTooManyRequests:
		return &reconcile.RateLimitedError{RetryAfter: retryAfterHeader(respErr.Response), Err: err}
	case status >= http.StatusInternalServerError:
		return &reconcile.TransientError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func alreadyExists(resp *gogithub.ErrorResponse) bool {
	for _, e := range resp.Errors {
		if e.Code == "already_exists" {
			return true
		}
	}
	return false
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
