package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/retry"
)

var testKey = kemono.CreatorService{Creator: "alice", Service: "patreon"}

// pagedFetcher serves pages by offset and can fail a page a few times first
type pagedFetcher struct {
	mu       sync.Mutex
	sizes    []int
	failures map[int][]error
	offsets  []int
}

func (f *pagedFetcher) Posts(ctx context.Context, service, creator, query string, offset int) ([]kemono.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)

	if queued := f.failures[offset]; len(queued) > 0 {
		f.failures[offset] = queued[1:]
		return nil, queued[0]
	}

	page := offset / kemono.PageSize
	if page >= len(f.sizes) {
		return []kemono.Post{}, nil
	}
	posts := make([]kemono.Post, f.sizes[page])
	for i := range posts {
		posts[i] = kemono.Post{ID: fmt.Sprintf("%d", offset+i), Service: service, User: creator}
	}
	return posts, nil
}

func testEnumerator(f PageFetcher, retries int) *Enumerator {
	return NewEnumerator(f, EnumeratorOptions{
		Retries: retries,
		Backoff: &retry.ConstantBackoff{Delay: time.Millisecond},
	}, logger.NewNopLogger())
}

func TestAllPostsPagination(t *testing.T) {
	f := &pagedFetcher{sizes: []int{50, 50, 13, 0}}

	posts, err := testEnumerator(f, 1).AllPosts(context.Background(), testKey)

	require.NoError(t, err)
	assert.Len(t, posts, 113)
	assert.Equal(t, []int{0, 50, 100, 150}, f.offsets)
	assert.Equal(t, "0", posts[0].ID)
	assert.Equal(t, "112", posts[112].ID, "pages keep listing order")
}

func TestAllPostsShortPageIsNotTerminal(t *testing.T) {
	f := &pagedFetcher{sizes: []int{13, 50, 0}}

	posts, err := testEnumerator(f, 1).AllPosts(context.Background(), testKey)

	require.NoError(t, err)
	assert.Len(t, posts, 63)
	assert.Equal(t, []int{0, 50, 100}, f.offsets)
}

func TestAllPostsEmptyListing(t *testing.T) {
	f := &pagedFetcher{}

	posts, err := testEnumerator(f, 1).AllPosts(context.Background(), testKey)

	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, []int{0}, f.offsets)
}

func TestAllPostsRetriesTransientFailures(t *testing.T) {
	f := &pagedFetcher{
		sizes: []int{50, 7},
		failures: map[int][]error{
			50: {
				kerrors.New(kerrors.KindTransport, "get posts", "connection reset"),
				kerrors.Status("get posts", 502),
			},
		},
	}

	posts, err := testEnumerator(f, 3).AllPosts(context.Background(), testKey)

	require.NoError(t, err)
	assert.Len(t, posts, 57)
	assert.Equal(t, []int{0, 50, 50, 50, 100}, f.offsets)
}

func TestAllPostsNeverRetriesRateLimit(t *testing.T) {
	f := &pagedFetcher{
		sizes:    []int{50},
		failures: map[int][]error{0: {kerrors.Status("get posts", 429)}},
	}

	posts, err := testEnumerator(f, 5).AllPosts(context.Background(), testKey)

	require.Error(t, err)
	assert.Nil(t, posts)
	assert.True(t, kerrors.IsRateLimited(err))
	assert.Equal(t, []int{0}, f.offsets)
}

func TestAllPostsMalformedPageAborts(t *testing.T) {
	f := &pagedFetcher{
		sizes:    []int{50, 50},
		failures: map[int][]error{50: {kerrors.New(kerrors.KindMalformedResponse, "decode posts", "unexpected EOF")}},
	}

	_, err := testEnumerator(f, 3).AllPosts(context.Background(), testKey)

	require.Error(t, err)
	assert.Equal(t, kerrors.KindMalformedResponse, kerrors.KindOf(err))
	assert.Contains(t, err.Error(), "offset 50")
	assert.Equal(t, []int{0, 50}, f.offsets)
}

func TestAllPostsRetriesExhausted(t *testing.T) {
	f := &pagedFetcher{
		failures: map[int][]error{0: {
			kerrors.Status("get posts", 503),
			kerrors.Status("get posts", 503),
			kerrors.Status("get posts", 503),
		}},
	}

	_, err := testEnumerator(f, 2).AllPosts(context.Background(), testKey)

	require.Error(t, err)
	assert.Equal(t, kerrors.KindStatus, kerrors.KindOf(err))
	assert.Len(t, f.offsets, 2)
}

func TestAllPostsReportsPages(t *testing.T) {
	f := &pagedFetcher{sizes: []int{50, 3}}
	var seen []int
	e := NewEnumerator(f, EnumeratorOptions{
		Retries: 1,
		OnPage: func(service string, posts int) {
			assert.Equal(t, "patreon", service)
			seen = append(seen, posts)
		},
	}, logger.NewNopLogger())

	_, err := e.AllPosts(context.Background(), testKey)

	require.NoError(t, err)
	assert.Equal(t, []int{50, 3, 0}, seen)
}
