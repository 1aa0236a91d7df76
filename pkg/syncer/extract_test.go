package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kemonosync/pkg/kemono"
)

func attachmentsOf(tasks []kemono.DownloadTask) []kemono.Attachment {
	out := make([]kemono.Attachment, len(tasks))
	for i, task := range tasks {
		out[i] = task.Attachment
	}
	return out
}

func TestExtract(t *testing.T) {
	cover := kemono.Attachment{Name: "cover.png", Path: "/aa/bb/cover.png"}
	page := kemono.Attachment{Name: "page1.jpg", Path: "/cc/dd/page1.jpg"}

	tests := []struct {
		name string
		post kemono.Post
		want []kemono.Attachment
	}{
		{
			name: "primary and attachments",
			post: kemono.Post{File: cover, Attachments: kemono.NewAttachmentSet(page)},
			want: []kemono.Attachment{cover, page},
		},
		{
			name: "primary repeated as attachment",
			post: kemono.Post{File: cover, Attachments: kemono.NewAttachmentSet(cover, page)},
			want: []kemono.Attachment{cover, page},
		},
		{
			name: "duplicate attachments",
			post: kemono.Post{Attachments: kemono.AttachmentSet{page, page}},
			want: []kemono.Attachment{page},
		},
		{
			name: "primary without path",
			post: kemono.Post{File: kemono.Attachment{Name: "cover.png"}, Attachments: kemono.NewAttachmentSet(page)},
			want: []kemono.Attachment{page},
		},
		{
			name: "empty primary",
			post: kemono.Post{},
			want: []kemono.Attachment{},
		},
		{
			name: "incomplete attachment is kept",
			post: kemono.Post{Attachments: kemono.NewAttachmentSet(kemono.Attachment{Name: "broken.zip"}, page)},
			want: []kemono.Attachment{{Name: "broken.zip"}, page},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := Extract(testKey, &tt.post)
			assert.Equal(t, tt.want, attachmentsOf(tasks))
			for _, task := range tasks {
				assert.Equal(t, testKey, task.Partition)
				assert.Same(t, &tt.post, task.Post)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	posts := []kemono.Post{
		{
			File: kemono.Attachment{Name: "cover.png", Path: "/a/cover.png"},
			Attachments: kemono.NewAttachmentSet(
				kemono.Attachment{Name: "clip.mp4", Path: "/a/clip.mp4"},
				kemono.Attachment{Name: "archive.tar.gz", Path: "/a/archive.tar.gz"},
			),
		},
		{
			File: kemono.Attachment{Path: "/a/unnamed"},
			Attachments: kemono.NewAttachmentSet(
				kemono.Attachment{Name: "scan.png"},
				kemono.Attachment{Name: "README"},
			),
		},
		{},
	}

	stats := ComputeStats(testKey, posts)

	assert.Equal(t, 3, stats.PostCount)
	assert.Equal(t, 5, stats.FileCount)
	assert.Equal(t, map[string]int{"png": 2, "mp4": 1, "gz": 1, "README": 1}, stats.Filetypes)
	assert.Equal(t, "patreon", stats.Service)
	assert.Equal(t, "alice", stats.Creator)
}
