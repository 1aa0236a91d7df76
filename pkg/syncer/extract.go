package syncer

import (
	"fmt"

	"kemonosync/pkg/kemono"
)

// Extract flattens a post into its download tasks. The primary file is
// included only when it has both a name and a path; additional attachments
// are always included so incomplete ones surface as task failures. An
// attachment listed as both primary and additional yields a single task.
func Extract(key kemono.CreatorService, post *kemono.Post) []kemono.DownloadTask {
	candidates := make([]kemono.Attachment, 0, len(post.Attachments)+1)
	if post.File.Downloadable() {
		candidates = append(candidates, post.File)
	}
	candidates = append(candidates, post.Attachments...)

	set := kemono.NewAttachmentSet(candidates...)
	tasks := make([]kemono.DownloadTask, 0, len(set))
	for _, a := range set {
		tasks = append(tasks, kemono.DownloadTask{
			Partition:  key,
			Post:       post,
			Attachment: a,
		})
	}
	return tasks
}

// index records metadata for every post and collects their tasks. A
// metadata failure stops the partition.
func (s *Syncer) index(key kemono.CreatorService, posts []kemono.Post) ([]kemono.DownloadTask, int, error) {
	var tasks []kemono.DownloadTask
	written := 0

	for i := range posts {
		post := &posts[i]
		wrote, err := s.metadata.Record(key, post)
		if err != nil {
			return nil, written, fmt.Errorf("failed to record metadata for post %q: %w", post.ID, err)
		}
		if wrote {
			written++
			s.metrics.MetadataWritten(key.Service)
		}
		tasks = append(tasks, Extract(key, post)...)
	}

	return tasks, written, nil
}
