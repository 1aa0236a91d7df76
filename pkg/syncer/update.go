package syncer

import (
	"context"
	"fmt"
	"path/filepath"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
)

// UpdateOptions narrows an update run
type UpdateOptions struct {
	// Creator, when set, limits the run to that creator directory
	Creator string
	// Service, when set, limits the run to that service directory
	Service string
	// OnPartition is called before each creator/service is synced
	OnPartition func(key kemono.CreatorService)
}

// PartitionError is the failure of one creator/service during an update
type PartitionError struct {
	Partition kemono.CreatorService
	Err       error
}

// UpdateReport collects the runs of an update
type UpdateReport struct {
	Reports []*Report
	Failed  []PartitionError
}

// Partitions lists the creator/service directories under the download
// root that pass the filters. Entries that are not directories are skipped.
func (s *Syncer) Partitions(creator, service string) ([]kemono.CreatorService, error) {
	creators, err := s.store.ReadDir(s.layout.Root)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindFilesystem, "list creators", err)
	}

	var keys []kemono.CreatorService
	for _, c := range creators {
		if !c.IsDir() {
			s.logger.WarnWithFields("skipping non-directory entry", map[string]interface{}{
				"path": filepath.Join(s.layout.Root, c.Name()),
			})
			continue
		}
		if creator != "" && c.Name() != creator {
			continue
		}

		creatorDir := filepath.Join(s.layout.Root, c.Name())
		services, err := s.store.ReadDir(creatorDir)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindFilesystem, "list services", err)
		}
		for _, svc := range services {
			if !svc.IsDir() {
				s.logger.WarnWithFields("skipping non-directory entry", map[string]interface{}{
					"path": filepath.Join(creatorDir, svc.Name()),
				})
				continue
			}
			if service != "" && svc.Name() != service {
				continue
			}
			keys = append(keys, kemono.CreatorService{Creator: c.Name(), Service: svc.Name()})
		}
	}
	return keys, nil
}

// UpdateAll re-runs Download for every creator/service already in the
// download tree. A failed partition is recorded and the walk goes on; a
// rate-limit abort or a cancelled context stops the walk and is returned.
func (s *Syncer) UpdateAll(ctx context.Context, opts UpdateOptions) (*UpdateReport, error) {
	keys, err := s.Partitions(opts.Creator, opts.Service)
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("updating download tree", map[string]interface{}{
		"root":       s.layout.Root,
		"partitions": len(keys),
		"creator":    opts.Creator,
		"service":    opts.Service,
	})

	report := &UpdateReport{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if opts.OnPartition != nil {
			opts.OnPartition(key)
		}

		r, err := s.Download(ctx, key)
		report.Reports = append(report.Reports, r)
		if err == nil {
			continue
		}

		report.Failed = append(report.Failed, PartitionError{Partition: key, Err: err})
		if kerrors.IsRateLimited(err) {
			return report, fmt.Errorf("update stopped at %s: %w", key, err)
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	s.logger.InfoWithFields("update finished", map[string]interface{}{
		"partitions": len(keys),
		"failed":     len(report.Failed),
	})
	return report, nil
}
