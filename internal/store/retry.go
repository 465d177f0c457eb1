package store

import (
	"context"
	"errors"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/sethvargo/go-retry"
)

// Read runs a query, retrying with exponential backoff while it fails with
// model.ErrTransient. Mutations must not go through Read.
func Read[T any](ctx context.Context, retries uint64, fn func(context.Context) (T, error)) (T, error) {
	var out T
	b := retry.WithMaxRetries(retries, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		v, err := fn(ctx)
		if errors.Is(err, model.ErrTransient) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
