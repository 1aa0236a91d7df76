package kemono

import (
	"encoding/json"
	"strings"
)

// Creator is one entry of the upstream creator listing
type Creator struct {
	Favorited int64  `json:"favorited"`
	ID        string `json:"id"`
	Indexed   int64  `json:"indexed"`
	Name      string `json:"name"`
	Service   string `json:"service"`
	Updated   int64  `json:"updated"`
}

// CreatorService identifies one creator on one service. It is the unit of
// pagination and the unit of on-disk layout.
type CreatorService struct {
	Creator string `json:"creator"`
	Service string `json:"service"`
}

func (k CreatorService) String() string {
	return k.Service + "/" + k.Creator
}

// Attachment references a file hosted upstream. Either field may be absent.
type Attachment struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// AttachmentKey is the identity of an attachment within a post
type AttachmentKey struct {
	Name string
	Path string
}

// Key returns the (name, path) identity of the attachment
func (a Attachment) Key() AttachmentKey {
	return AttachmentKey{Name: a.Name, Path: a.Path}
}

// Downloadable reports whether both name and path are present
func (a Attachment) Downloadable() bool {
	return a.Name != "" && a.Path != ""
}

// Extension returns the text after the last "." of the name, or the whole
// name when it has no dot.
func (a Attachment) Extension() string {
	if i := strings.LastIndex(a.Name, "."); i >= 0 {
		return a.Name[i+1:]
	}
	return a.Name
}

// AttachmentSet is a list of attachments unique by (name, path). Decoding
// collapses duplicates while keeping first-seen order.
type AttachmentSet []Attachment

// UnmarshalJSON implements json.Unmarshaler
func (s *AttachmentSet) UnmarshalJSON(data []byte) error {
	var raw []Attachment
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	*s = NewAttachmentSet(raw...)
	return nil
}

// NewAttachmentSet builds a set from attachments, dropping repeats
func NewAttachmentSet(attachments ...Attachment) AttachmentSet {
	seen := make(map[AttachmentKey]struct{}, len(attachments))
	set := make(AttachmentSet, 0, len(attachments))
	for _, a := range attachments {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		set = append(set, a)
	}
	return set
}

// Post is a single upstream post. Posts are treated as immutable once fetched.
type Post struct {
	ID          string        `json:"id"`
	User        string        `json:"user"`
	Service     string        `json:"service"`
	Title       string        `json:"title"`
	Content     *string       `json:"content"`
	Embed       any           `json:"embed"`
	SharedFile  *bool         `json:"shared_file"`
	File        Attachment    `json:"file"`
	Added       string        `json:"added"`
	Published   string        `json:"published"`
	Edited      any           `json:"edited"`
	Poll        any           `json:"poll"`
	Captions    any           `json:"captions"`
	Tags        any           `json:"tags"`
	Attachments AttachmentSet `json:"attachments"`
}

// DownloadTask pairs a post with one attachment it owns. Partition is the
// creator/service the post was enumerated under and decides the target dir.
type DownloadTask struct {
	Partition  CreatorService
	Post       *Post
	Attachment Attachment
}
