package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kemonosync/internal/downloader"
	"kemonosync/pkg/config"
	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/metadata"
	"kemonosync/pkg/metrics"
	"kemonosync/pkg/retry"
	"kemonosync/pkg/storage"
)

// Options wires a Syncer together
type Options struct {
	Fetcher  PageFetcher
	Sessions downloader.SessionFactory
	Store    storage.Store
	Metrics  *metrics.Recorder
	Logger   logger.Logger

	// Root is the top of the download tree
	Root string
	// Workers is the number of concurrent downloads
	Workers int
	// AcceptReencoded lets an mkv file satisfy an mp4 or m4v attachment
	AcceptReencoded bool
	// NameFilter keeps only attachments whose name contains it
	NameFilter string
	// PageRetries is the number of attempts per listing page
	PageRetries int
	// Backoff spaces out page retries
	Backoff retry.BackoffStrategy
}

// OptionsFromConfig fills the tunables of Options from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:            cfg.Output.BaseDirectory,
		Workers:         cfg.Download.Threads,
		AcceptReencoded: cfg.Download.AcceptReencoded,
		NameFilter:      cfg.Download.NameFilter,
		PageRetries:     cfg.Download.PageRetries,
	}
}

// ClientSessions adapts a client into a per-worker session factory
func ClientSessions(client *kemono.Client) downloader.SessionFactory {
	return func() (downloader.Session, error) {
		session, err := client.NewSession()
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// Syncer runs the enumerate, index and download pipeline for one
// creator/service at a time. It keeps no state between runs: the download
// tree alone decides what is left to fetch.
type Syncer struct {
	enumerator *Enumerator
	resume     *storage.ResumeIndex
	store      storage.Store
	layout     storage.Layout
	metadata   *metadata.Writer
	sessions   downloader.SessionFactory
	schedOpts  downloader.Options
	metrics    *metrics.Recorder
	logger     logger.Logger
}

// Report describes one creator/service run
type Report struct {
	RunID           string
	Partition       kemono.CreatorService
	Posts           int
	MetadataWritten int
	Result          *downloader.Result
	Duration        time.Duration
}

// New creates a Syncer
func New(opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRecorder()
	}
	if opts.Store == nil {
		opts.Store = storage.NewOSStore()
	}

	layout := storage.NewLayout(opts.Root)
	rec := opts.Metrics

	return &Syncer{
		enumerator: NewEnumerator(opts.Fetcher, EnumeratorOptions{
			Retries: opts.PageRetries,
			Backoff: opts.Backoff,
			OnPage:  rec.PageFetched,
		}, opts.Logger),
		resume:   storage.NewResumeIndex(opts.Store, layout, opts.AcceptReencoded),
		store:    opts.Store,
		layout:   layout,
		metadata: metadata.NewWriter(opts.Store, layout),
		sessions: opts.Sessions,
		schedOpts: downloader.Options{
			Workers:    opts.Workers,
			NameFilter: opts.NameFilter,
		},
		metrics: rec,
		logger:  opts.Logger,
	}
}

// Query returns every post of a creator on a service, in listing order
func (s *Syncer) Query(ctx context.Context, key kemono.CreatorService) ([]kemono.Post, error) {
	return s.enumerator.AllPosts(ctx, key)
}

// Download enumerates the creator's posts, records metadata for the new
// ones and downloads every attachment not yet on disk. The report is
// returned even on error. Task-level failures are in the report only; a
// rate-limit abort is returned as a KindRateLimited error.
func (s *Syncer) Download(ctx context.Context, key kemono.CreatorService) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Partition: key}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id":  report.RunID,
		"creator": key.Creator,
		"service": key.Service,
	})
	logger.LogPartition(log, key.Creator, key.Service, "download")

	fail := func(err error) (*Report, error) {
		report.Duration = time.Since(start)
		if kerrors.IsRateLimited(err) {
			s.metrics.Partition("rate_limited")
		} else {
			s.metrics.Partition("failed")
		}
		log.WithError(err).Error("creator sync failed")
		return report, err
	}

	posts, err := s.enumerator.withLogger(log).AllPosts(ctx, key)
	if err != nil {
		return fail(err)
	}
	report.Posts = len(posts)

	tasks, written, err := s.index(key, posts)
	report.MetadataWritten = written
	if err != nil {
		return fail(err)
	}

	scheduler := downloader.NewScheduler(s.schedOpts, s.sessions, s.resume, log)
	report.Result = scheduler.Run(ctx, tasks)
	report.Duration = time.Since(start)

	for _, o := range report.Result.Outcomes {
		s.metrics.Attachment(key.Service, string(o.Status), o.Size)
	}

	summary := report.Result.Summary()
	logger.LogMetrics(log, "download", map[string]interface{}{
		"posts":            report.Posts,
		"metadata_written": report.MetadataWritten,
		"tasks":            summary.Total,
		"downloaded":       summary.Downloaded,
		"skipped":          summary.Skipped,
		"filtered":         summary.Filtered,
		"failed":           summary.Failed,
		"aborted":          summary.Aborted,
		"bytes":            summary.Bytes,
		"duration_ms":      report.Duration.Milliseconds(),
	})

	if err := report.Result.Err(); err != nil {
		if kerrors.IsRateLimited(err) {
			s.metrics.RateLimited()
		}
		return fail(fmt.Errorf("download batch for %s: %w", key, err))
	}

	s.metrics.Partition("ok")
	return report, nil
}
