package downloader

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
)

// Status is the final state of one download task
type Status string

const (
	StatusDownloaded  Status = "downloaded"
	StatusSkipped     Status = "skipped"
	StatusFiltered    Status = "filtered"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
	StatusAborted     Status = "aborted"
)

// Outcome represents the result of a single task
type Outcome struct {
	Task     kemono.DownloadTask
	Status   Status
	Path     string
	Size     int64
	Err      error
	Duration time.Duration
	WorkerID int
}

// Session downloads attachment bodies. A session is owned by one worker.
type Session interface {
	URL(path string) string
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// SessionFactory creates a fresh session. It is called once per worker.
type SessionFactory func() (Session, error)

// AttachmentStore decides whether a task is already on disk and saves the
// ones that are not.
type AttachmentStore interface {
	Check(task kemono.DownloadTask) error
	IsSatisfied(task kemono.DownloadTask) bool
	Destination(task kemono.DownloadTask) string
	Save(task kemono.DownloadTask, body io.Reader) (string, int64, error)
}

// Options configures a Scheduler
type Options struct {
	// Workers is the number of concurrent downloads
	Workers int
	// NameFilter, when set, drops tasks whose attachment name does not
	// contain it. Attachments without a name are never dropped here.
	NameFilter string
}

// Scheduler downloads a batch of tasks with a bounded set of workers. A 429
// from the upstream stops the batch: no further task is started, tasks in
// progress run to completion and the rest are reported as aborted.
type Scheduler struct {
	workers    int
	nameFilter string
	sessions   SessionFactory
	store      AttachmentStore
	logger     logger.Logger
}

// NewScheduler creates a download scheduler
func NewScheduler(opts Options, sessions SessionFactory, store AttachmentStore, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Scheduler{
		workers:    opts.Workers,
		nameFilter: opts.NameFilter,
		sessions:   sessions,
		store:      store,
		logger:     log,
	}
}

// Run downloads tasks and returns one outcome per task, in task order.
// Cancelling ctx stops dispatch and interrupts downloads in progress.
func (s *Scheduler) Run(ctx context.Context, tasks []kemono.DownloadTask) *Result {
	start := time.Now()
	outcomes := make([]Outcome, len(tasks))

	pending := make([]int, 0, len(tasks))
	for i, task := range tasks {
		if s.filtered(task) {
			outcomes[i] = Outcome{Task: task, Status: StatusFiltered}
			s.logger.DebugWithFields("attachment does not match name filter", map[string]interface{}{
				"name":   task.Attachment.Name,
				"filter": s.nameFilter,
			})
			continue
		}
		pending = append(pending, i)
	}

	workers := s.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	s.logger.InfoWithFields("starting download batch", map[string]interface{}{
		"tasks":    len(tasks),
		"pending":  len(pending),
		"filtered": len(tasks) - len(pending),
		"workers":  workers,
	})

	var abort atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for _, i := range pending {
			if abort.Load() || gctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			return s.worker(ctx, gctx, id, &abort, jobs, tasks, outcomes)
		})
	}

	err := g.Wait()

	result := &Result{Outcomes: outcomes, Duration: time.Since(start)}
	for i := range outcomes {
		if outcomes[i].Status == "" {
			outcomes[i] = Outcome{Task: tasks[i], Status: StatusAborted}
		}
		if outcomes[i].Status == StatusRateLimited {
			result.RateLimited = true
		}
	}
	if err != nil && !result.RateLimited {
		result.err = err
	}
	if result.err == nil && !result.RateLimited && ctx.Err() != nil {
		result.err = ctx.Err()
	}

	summary := result.Summary()
	s.logger.InfoWithFields("download batch finished", map[string]interface{}{
		"downloaded":   summary.Downloaded,
		"skipped":      summary.Skipped,
		"filtered":     summary.Filtered,
		"failed":       summary.Failed,
		"aborted":      summary.Aborted,
		"rate_limited": result.RateLimited,
		"bytes":        summary.Bytes,
		"duration":     result.Duration,
	})

	return result
}

func (s *Scheduler) filtered(task kemono.DownloadTask) bool {
	if s.nameFilter == "" || task.Attachment.Name == "" {
		return false
	}
	return !strings.Contains(task.Attachment.Name, s.nameFilter)
}

// worker owns one session for its whole life. Downloads use ctx rather than
// gctx so a rate-limit abort never cuts off a transfer already under way.
func (s *Scheduler) worker(
	ctx, gctx context.Context,
	id int,
	abort *atomic.Bool,
	jobs <-chan int,
	tasks []kemono.DownloadTask,
	outcomes []Outcome,
) error {
	session, err := s.sessions()
	if err != nil {
		s.logger.ErrorWithFields("failed to create download session", map[string]interface{}{
			"worker_id": id,
			"error":     err.Error(),
		})
		return kerrors.Wrap(kerrors.KindGeneric, "create session", err)
	}
	if closer, ok := session.(interface{ CloseIdleConnections() }); ok {
		defer closer.CloseIdleConnections()
	}

	s.logger.DebugWithFields("worker started", map[string]interface{}{
		"worker_id": id,
	})

	for i := range jobs {
		// Dispatch may race with an abort; never start a task after one.
		if abort.Load() || gctx.Err() != nil {
			continue
		}

		outcome := s.process(ctx, id, session, tasks[i])
		outcomes[i] = outcome

		if outcome.Status == StatusRateLimited {
			abort.Store(true)
			logger.LogRateLimit(s.logger, session.URL(tasks[i].Attachment.Path))
			return outcome.Err
		}
	}

	return nil
}

// process handles a single download task
func (s *Scheduler) process(ctx context.Context, workerID int, session Session, task kemono.DownloadTask) Outcome {
	start := time.Now()
	outcome := Outcome{Task: task, WorkerID: workerID}
	log := s.logger.WithFields(taskFields(task))

	finish := func(status Status, err error) Outcome {
		outcome.Status = status
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	if !task.Attachment.Downloadable() {
		err := kerrors.New(kerrors.KindMalformedAttachment, "download attachment", "attachment is missing a name or path")
		log.WithError(err).Error("skipping malformed attachment")
		return finish(StatusFailed, err)
	}

	// Names come from the upstream and must not escape the partition dir.
	if err := s.store.Check(task); err != nil {
		log.WithError(err).Error("skipping attachment with unsafe name")
		return finish(StatusFailed, err)
	}

	if s.store.IsSatisfied(task) {
		log.Debug("attachment already downloaded")
		outcome.Path = s.store.Destination(task)
		return finish(StatusSkipped, nil)
	}

	path := kemono.NormalizePath(task.Attachment.Path)
	log.InfoWithFields("downloading attachment", map[string]interface{}{
		"action":    "download",
		"filename":  s.store.Destination(task),
		"url":       session.URL(path),
		"worker_id": workerID,
	})

	body, err := session.Open(ctx, path)
	if err != nil {
		if kerrors.IsRateLimited(err) {
			log.WithError(err).Error("rate limited, stopping batch")
			return finish(StatusRateLimited, err)
		}
		log.WithError(err).Error("failed to download attachment")
		return finish(StatusFailed, err)
	}

	dest, n, err := s.store.Save(task, body)
	body.Close()
	outcome.Path = dest
	outcome.Size = n
	if err != nil {
		log.WithError(err).Error("failed to save attachment")
		return finish(StatusFailed, err)
	}

	logger.LogDownload(log, dest, n, nil)
	return finish(StatusDownloaded, nil)
}

func taskFields(task kemono.DownloadTask) map[string]interface{} {
	fields := map[string]interface{}{
		"service":         task.Partition.Service,
		"creator":         task.Partition.Creator,
		"attachment_name": task.Attachment.Name,
		"attachment_path": task.Attachment.Path,
	}
	if task.Post != nil {
		fields["post_id"] = task.Post.ID
	}
	return fields
}
