package syncer

import (
	"context"

	"kemonosync/pkg/kemono"
)

// Stats summarizes the files a creator has published on a service
type Stats struct {
	PostCount int            `json:"post_count"`
	FileCount int            `json:"file_count"`
	Filetypes map[string]int `json:"filetypes"`
	Service   string         `json:"service"`
	Creator   string         `json:"creator"`
}

// ComputeStats counts the primary file and every additional attachment that
// has a name, grouped by extension.
func ComputeStats(key kemono.CreatorService, posts []kemono.Post) *Stats {
	stats := &Stats{
		PostCount: len(posts),
		Filetypes: make(map[string]int),
		Service:   key.Service,
		Creator:   key.Creator,
	}

	count := func(a kemono.Attachment) {
		if a.Name == "" {
			return
		}
		stats.FileCount++
		stats.Filetypes[a.Extension()]++
	}

	for i := range posts {
		count(posts[i].File)
		for _, a := range posts[i].Attachments {
			count(a)
		}
	}
	return stats
}

// Stats enumerates a creator's posts and summarizes their files
func (s *Syncer) Stats(ctx context.Context, key kemono.CreatorService) (*Stats, error) {
	posts, err := s.Query(ctx, key)
	if err != nil {
		return nil, err
	}
	return ComputeStats(key, posts), nil
}
