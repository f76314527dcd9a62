package registry

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

// MaxRetries is the bounded retry count for 5xx/429 responses (§4.3,
// default 3).
const MaxRetries = 3

// retryableStatus reports whether an HTTP status should be retried with
// exponential backoff rather than surfaced immediately.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// WithRetry runs op, retrying up to MaxRetries times with exponential
// backoff when op returns a transient apperrors.Error (RegistryUnreachable
// or RateLimited).
func WithRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	bounded := backoff.WithMaxRetries(policy, MaxRetries)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if apperrors.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, bounded)
}
