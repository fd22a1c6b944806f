package objectstore

import (
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
)

// matchGlob wraps filepath.Match for the S3 backend's key filtering in
// S3Store.IterateKeys.
func matchGlob(pattern, name string) (bool, error) {
	return filepath.Match(pattern, name)
}

// backoffPermanent marks err as non-retryable within a withRetry call.
func backoffPermanent(err error) error {
	return backoff.Permanent(err)
}
