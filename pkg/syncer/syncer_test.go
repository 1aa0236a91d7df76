package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kemonosync/internal/downloader"
	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/metrics"
	"kemonosync/pkg/retry"
	"kemonosync/pkg/storage"
)

// upstream is a minimal fake of the post listing and file host
type upstream struct {
	mu         sync.Mutex
	posts      map[string][]kemono.Post
	listings   []string
	files      []string
	fileStatus map[string]int
	listStatus map[string]int
}

func newUpstream() *upstream {
	return &upstream{
		posts:      make(map[string][]kemono.Post),
		fileStatus: make(map[string]int),
		listStatus: make(map[string]int),
	}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if rest, ok := strings.CutPrefix(r.URL.Path, kemono.APIPrefix+"/"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) != 3 || parts[1] != "user" {
			http.NotFound(w, r)
			return
		}
		key := parts[0] + "/" + parts[2]
		u.listings = append(u.listings, key)
		if status := u.listStatus[key]; status != 0 {
			w.WriteHeader(status)
			return
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("o"))
		all := u.posts[key]
		page := []kemono.Post{}
		if offset < len(all) {
			end := offset + kemono.PageSize
			if end > len(all) {
				end = len(all)
			}
			page = all[offset:end]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
		return
	}

	u.files = append(u.files, r.URL.Path)
	if status := u.fileStatus[r.URL.Path]; status != 0 {
		w.WriteHeader(status)
		return
	}
	_, _ = w.Write([]byte("bytes of " + r.URL.Path))
}

func (u *upstream) fileCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.files)
}

func (u *upstream) listingKeys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	seen := map[string]bool{}
	var keys []string
	for _, k := range u.listings {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func newTestSyncer(t *testing.T, fs afero.Fs, up *upstream) (*Syncer, *metrics.Recorder) {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	client := kemono.NewClient(kemono.Options{
		Hostname: srv.URL,
		Logger:   logger.NewNopLogger(),
	})
	rec := metrics.NewRecorder()

	s := New(Options{
		Fetcher:     client,
		Sessions:    ClientSessions(client),
		Store:       storage.NewFSStore(fs),
		Metrics:     rec,
		Logger:      logger.NewNopLogger(),
		Root:        "/dl",
		Workers:     2,
		PageRetries: 2,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	})
	return s, rec
}

func samplePosts() []kemono.Post {
	return []kemono.Post{
		{
			ID:        "1001",
			User:      "alice",
			Service:   "patreon",
			Title:     "first",
			Published: "2024-01-02T03:04:05",
			File:      kemono.Attachment{Name: "cover.png", Path: "/aa/bb/cover.png"},
			Attachments: kemono.NewAttachmentSet(
				kemono.Attachment{Name: "cover.png", Path: "/aa/bb/cover.png"},
				kemono.Attachment{Name: "clip.mp4", Path: "/cc/dd/clip.mp4"},
			),
		},
		{
			ID:          "1002",
			User:        "alice",
			Service:     "patreon",
			Title:       "second",
			Published:   "2024-02-03T04:05:06",
			Attachments: kemono.NewAttachmentSet(kemono.Attachment{Name: "notes.txt", Path: "ee/ff/notes.txt"}),
		},
	}
}

func TestDownloadThenResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = samplePosts()
	s, _ := newTestSyncer(t, fs, up)

	report, err := s.Download(context.Background(), testKey)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Posts)
	assert.Equal(t, 2, report.MetadataWritten)
	assert.Equal(t, 3, report.Result.Summary().Downloaded, "primary repeated as attachment is fetched once")
	assert.Equal(t, 3, up.fileCount())

	data, err := afero.ReadFile(fs, "/dl/alice/patreon/2024-01-02T03-04-05-cover.png")
	require.NoError(t, err)
	assert.Equal(t, "bytes of /aa/bb/cover.png", string(data))

	data, err = afero.ReadFile(fs, "/dl/alice/patreon/2024-02-03T04-05-06-notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "bytes of /ee/ff/notes.txt", string(data), "paths gain a leading slash")

	meta, err := afero.ReadFile(fs, "/dl/alice/patreon/metadata/1001.json")
	require.NoError(t, err)
	assert.Contains(t, string(meta), "\n  \"id\": \"1001\"")

	again, err := s.Download(context.Background(), testKey)
	require.NoError(t, err)
	assert.NotEqual(t, report.RunID, again.RunID)
	assert.Equal(t, 0, again.MetadataWritten)
	assert.Equal(t, 3, again.Result.Summary().Skipped)
	assert.Equal(t, 3, up.fileCount(), "second run fetches no attachment")
}

func TestDownloadKeepsMetadataOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = samplePosts()
	s, _ := newTestSyncer(t, fs, up)

	_, err := s.Download(context.Background(), testKey)
	require.NoError(t, err)

	up.mu.Lock()
	up.posts["patreon/alice"][0].Title = "edited upstream"
	up.mu.Unlock()

	_, err = s.Download(context.Background(), testKey)
	require.NoError(t, err)

	meta, err := afero.ReadFile(fs, "/dl/alice/patreon/metadata/1001.json")
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"first"`)
	assert.NotContains(t, string(meta), "edited upstream")
}

func TestDownloadMalformedAttachmentSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = []kemono.Post{{
		ID:        "7",
		Published: "2024-03-01T00:00:00",
		Attachments: kemono.NewAttachmentSet(
			kemono.Attachment{Name: "broken.zip"},
			kemono.Attachment{Name: "fine.zip", Path: "/x/fine.zip"},
		),
	}}
	s, _ := newTestSyncer(t, fs, up)

	report, err := s.Download(context.Background(), testKey)

	require.NoError(t, err, "a bad attachment does not fail the creator")
	failed := report.Result.ByStatus(downloader.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "broken.zip", failed[0].Task.Attachment.Name)
	assert.Equal(t, kerrors.KindMalformedAttachment, kerrors.KindOf(failed[0].Err))

	exists, err := afero.Exists(fs, "/dl/alice/patreon/2024-03-01T00-00-00-fine.zip")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDownloadAcceptsReencoded(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = []kemono.Post{{
		ID:          "9",
		Published:   "2024-04-01T10:00:00",
		Attachments: kemono.NewAttachmentSet(kemono.Attachment{Name: "video.mp4", Path: "/v/video.mp4"}),
	}}
	require.NoError(t, fs.MkdirAll("/dl/alice/patreon", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/dl/alice/patreon/2024-04-01T10-00-00-video.mkv", []byte("mkv"), 0o644))

	s, _ := newTestSyncer(t, fs, up)
	report, err := s.Download(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Result.Summary().Downloaded, "mkv is ignored without the policy")

	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dl/alice/patreon", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/dl/alice/patreon/2024-04-01T10-00-00-video.mkv", []byte("mkv"), 0o644))
	opts := s.optionsForTest(fs)
	opts.AcceptReencoded = true
	report, err = New(opts).Download(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Result.Summary().Skipped)
}

func TestDownloadRateLimited(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = samplePosts()
	up.fileStatus["/aa/bb/cover.png"] = http.StatusTooManyRequests
	s, rec := newTestSyncer(t, fs, up)

	report, err := s.Download(context.Background(), testKey)

	require.Error(t, err)
	assert.True(t, kerrors.IsRateLimited(err))
	require.NotNil(t, report.Result)
	assert.True(t, report.Result.RateLimited)
	assert.Len(t, report.Result.ByStatus(downloader.StatusRateLimited), 1)

	families, gerr := rec.Registry().Gather()
	require.NoError(t, gerr)
	found := false
	for _, mf := range families {
		if mf.GetName() == "kemonosync_rate_limited_batches_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestDownloadListingFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	up := newUpstream()
	up.posts["patreon/alice"] = samplePosts()
	up.listStatus["patreon/alice"] = http.StatusNotFound
	s, _ := newTestSyncer(t, fs, up)

	report, err := s.Download(context.Background(), testKey)

	require.Error(t, err)
	assert.Equal(t, kerrors.KindStatus, kerrors.KindOf(err))
	assert.Nil(t, report.Result)
	assert.Equal(t, 0, up.fileCount())

	exists, err := afero.DirExists(fs, "/dl/alice/patreon/metadata")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQueryAndStats(t *testing.T) {
	up := newUpstream()
	up.posts["patreon/alice"] = samplePosts()
	s, _ := newTestSyncer(t, afero.NewMemMapFs(), up)

	posts, err := s.Query(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "1001", posts[0].ID)

	stats, err := s.Stats(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PostCount)
	assert.Equal(t, 4, stats.FileCount)
	assert.Equal(t, map[string]int{"png": 2, "mp4": 1, "txt": 1}, stats.Filetypes)
	assert.Equal(t, 0, up.fileCount())
}

// optionsForTest rebuilds the options of s over a different filesystem
func (s *Syncer) optionsForTest(fs afero.Fs) Options {
	return Options{
		Fetcher:     s.enumerator.fetcher,
		Sessions:    s.sessions,
		Store:       storage.NewFSStore(fs),
		Metrics:     s.metrics,
		Logger:      s.logger,
		Root:        s.layout.Root,
		Workers:     s.schedOpts.Workers,
		PageRetries: s.enumerator.retries,
		Backoff:     s.enumerator.backoff,
	}
}
