// Package retry re-runs operations that failed for transient reasons.
//
// Only transport failures and 5xx responses are retried by default. Rate
// limits are returned immediately so the caller can stop the batch, and
// malformed responses are returned immediately because repeating the
// request will not change them.
//
//	posts, err := retry.DoWithResult(func() ([]kemono.Post, error) {
//		return client.Posts(ctx, service, creator, "", offset)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Context:     ctx,
//		Logger:      log,
//	})
package retry
