package syncer

import (
	"context"
	"fmt"

	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/retry"
)

// PageFetcher returns one page of a creator's posts. An empty page means the
// listing is exhausted.
type PageFetcher interface {
	Posts(ctx context.Context, service, creator, query string, offset int) ([]kemono.Post, error)
}

// EnumeratorOptions configures page retries
type EnumeratorOptions struct {
	// Retries is the number of attempts per page, including the first
	Retries int
	// Backoff spaces out the attempts
	Backoff retry.BackoffStrategy
	// OnPage is called after every page with the number of posts on it
	OnPage func(service string, posts int)
}

// Enumerator walks the paged post listing of one creator/service
type Enumerator struct {
	fetcher PageFetcher
	retries int
	backoff retry.BackoffStrategy
	onPage  func(service string, posts int)
	logger  logger.Logger
}

// NewEnumerator creates an enumerator over fetcher
func NewEnumerator(fetcher PageFetcher, opts EnumeratorOptions, log logger.Logger) *Enumerator {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}

	return &Enumerator{
		fetcher: fetcher,
		retries: opts.Retries,
		backoff: opts.Backoff,
		onPage:  opts.OnPage,
		logger:  log,
	}
}

// withLogger returns a copy that logs to log
func (e *Enumerator) withLogger(log logger.Logger) *Enumerator {
	clone := *e
	clone.logger = log
	return &clone
}

// AllPosts fetches every page from offset 0 until an empty page and returns
// the posts in listing order. The offset always advances by a full page, so
// a short page is not treated as the last one. Any page that still fails
// after its retries aborts the enumeration.
func (e *Enumerator) AllPosts(ctx context.Context, key kemono.CreatorService) ([]kemono.Post, error) {
	var posts []kemono.Post

	for offset := 0; ; offset += kemono.PageSize {
		page, err := retry.DoWithResult(func() ([]kemono.Post, error) {
			return e.fetcher.Posts(ctx, key.Service, key.Creator, "", offset)
		}, &retry.Config{
			MaxAttempts: e.retries,
			Backoff:     e.backoff,
			RetryIf:     retry.DefaultRetryIf,
			Context:     ctx,
			Logger:      e.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch posts for %s at offset %d: %w", key, offset, err)
		}

		if e.onPage != nil {
			e.onPage(key.Service, len(page))
		}

		if len(page) == 0 {
			e.logger.DebugWithFields("reached end of post listing", map[string]interface{}{
				"offset": offset,
				"posts":  len(posts),
			})
			return posts, nil
		}

		e.logger.DebugWithFields("fetched post page", map[string]interface{}{
			"offset": offset,
			"count":  len(page),
		})
		posts = append(posts, page...)
	}
}
