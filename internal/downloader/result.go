package downloader

import (
	"time"

	kerrors "kemonosync/pkg/errors"
)

// Result holds the outcome of every task in a batch
type Result struct {
	Outcomes    []Outcome
	RateLimited bool
	Duration    time.Duration

	err error
}

// Summary aggregates outcome counts
type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Filtered   int
	Failed     int
	Aborted    int
	Bytes      int64
}

// Summary counts outcomes by status
func (r *Result) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusDownloaded:
			s.Downloaded++
			s.Bytes += o.Size
		case StatusSkipped:
			s.Skipped++
		case StatusFiltered:
			s.Filtered++
		case StatusFailed, StatusRateLimited:
			s.Failed++
		case StatusAborted:
			s.Aborted++
		}
	}
	return s
}

// ByStatus returns the outcomes with the given status
func (r *Result) ByStatus(status Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Err returns a rate-limit error when the batch was aborted by the
// upstream, or the error that stopped the batch otherwise. Per-task
// failures are not batch errors.
func (r *Result) Err() error {
	if r.RateLimited {
		for _, o := range r.Outcomes {
			if o.Status == StatusRateLimited && o.Err != nil {
				return o.Err
			}
		}
		return kerrors.New(kerrors.KindRateLimited, "download batch", "rate limited by upstream")
	}
	return r.err
}
