package kemono

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentSetDedup(t *testing.T) {
	var post Post
	err := json.Unmarshal([]byte(`{
		"id": "7", "user": "alice", "service": "patreon", "title": "t",
		"embed": {"url": "https://example.com", "subject": null},
		"file": {},
		"added": "2024-03-01T10:00:00", "published": "2024-03-01T10:00:00",
		"attachments": [
			{"name": "1.jpg", "path": "/a/1.jpg"},
			{"name": "2.jpg", "path": "/a/2.jpg"},
			{"name": "1.jpg", "path": "/a/1.jpg"},
			{"name": "1.jpg", "path": "/b/1.jpg"}
		]
	}`), &post)
	require.NoError(t, err)

	assert.Equal(t, AttachmentSet{
		{Name: "1.jpg", Path: "/a/1.jpg"},
		{Name: "2.jpg", Path: "/a/2.jpg"},
		{Name: "1.jpg", Path: "/b/1.jpg"},
	}, post.Attachments)

	embed, ok := post.Embed.(map[string]interface{})
	require.True(t, ok, "embed stays an untyped JSON tree")
	assert.Equal(t, "https://example.com", embed["url"])
	assert.False(t, post.File.Downloadable())
}

func TestAttachmentsOptional(t *testing.T) {
	var post Post
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","file":{"name":"x"},"attachments":null}`), &post))
	assert.Nil(t, post.Attachments)
	assert.Equal(t, "x", post.File.Name)
	assert.Empty(t, post.File.Path)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"2","file":{}}`), &post))
	assert.Nil(t, post.Attachments)
}

func TestAttachmentExtension(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":       "jpg",
		"archive.tar.gz":  "gz",
		"README":          "README",
		"trailing.":       "",
		"clip.final.mp4":  "mp4",
	}
	for name, want := range tests {
		assert.Equal(t, want, Attachment{Name: name}.Extension(), name)
	}
}

func TestPostRoundTripKeepsUnknownShapes(t *testing.T) {
	in := `{"id":"3","user":"u","service":"s","title":"t","content":"<p>hi</p>","embed":{},"shared_file":false,` +
		`"file":{"name":"f.png","path":"/f.png"},"added":"a","published":"p","edited":"2024-01-02T00:00:00",` +
		`"poll":null,"captions":null,"tags":["one","two"],"attachments":[]}`

	var post Post
	require.NoError(t, json.Unmarshal([]byte(in), &post))
	require.NotNil(t, post.Content)
	assert.Equal(t, "<p>hi</p>", *post.Content)
	assert.Equal(t, "2024-01-02T00:00:00", post.Edited)
	assert.Equal(t, []interface{}{"one", "two"}, post.Tags)
	assert.NotNil(t, post.Attachments)
	assert.Empty(t, post.Attachments)
}
