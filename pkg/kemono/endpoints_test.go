package kemono

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
	}{
		{"kemono.su", "https://kemono.su"},
		{"  coomer.su/ ", "https://coomer.su"},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"https://mirror.example/", "https://mirror.example"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseURL(tt.hostname))
		})
	}
}

func TestPostsURL(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		offset  int
		want    string
		wantErr bool
	}{
		{
			name:   "first page sends offset zero",
			offset: 0,
			want:   "https://kemono.su/api/v1/patreon/user/12345?o=0",
		},
		{
			name:   "later page",
			offset: 150,
			want:   "https://kemono.su/api/v1/patreon/user/12345?o=150",
		},
		{
			name:   "with query",
			query:  "sketch dump",
			offset: 50,
			want:   "https://kemono.su/api/v1/patreon/user/12345?o=50&q=sketch+dump",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PostsURL("https://kemono.su", "patreon", "12345", tt.query, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PostsURL("https://kemono.su", "", "12345", "", 0)
	assert.Error(t, err)
}

func TestOtherURLs(t *testing.T) {
	base := "https://kemono.su"

	recent, err := RecentPostsURL(base, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://kemono.su/api/v1/posts?o=0", recent)

	assert.Equal(t, "https://kemono.su/api/v1/creators.txt", CreatorsURL(base))
	assert.Equal(t, "https://kemono.su/api/v1/app_version", AppVersionURL(base))
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "https://kemono.su/data/ab/cd/file.png", FileURL("https://kemono.su", "/data/ab/cd/file.png"))
	assert.Equal(t, "https://kemono.su/data/ab/cd/file.png", FileURL("https://kemono.su", "data/ab/cd/file.png"))
}
