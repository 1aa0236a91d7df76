package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
)

const (
	// DefaultRoot is where downloads go when no output directory is configured
	DefaultRoot = "./download"

	// MetadataDir holds one JSON document per post inside a partition dir
	MetadataDir = "metadata"
)

// Layout maps creators, posts and attachments to paths below Root:
//
//	<root>/<creator>/<service>/metadata/<post-id>.json
//	<root>/<creator>/<service>/<published>-<attachment-name>
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at root, or DefaultRoot when empty
func NewLayout(root string) Layout {
	if root == "" {
		root = DefaultRoot
	}
	return Layout{Root: root}
}

// PartitionDir is the directory holding everything for one creator/service
func (l Layout) PartitionDir(key kemono.CreatorService) string {
	return filepath.Join(l.Root, key.Creator, key.Service)
}

// MetadataPath is where a post's JSON document lives
func (l Layout) MetadataPath(key kemono.CreatorService, postID string) string {
	return filepath.Join(l.PartitionDir(key), MetadataDir, postID+".json")
}

// AttachmentPath is the canonical download target of a task
func (l Layout) AttachmentPath(task kemono.DownloadTask) string {
	return filepath.Join(l.PartitionDir(task.Partition), AttachmentFilename(task.Post.Published, task.Attachment.Name))
}

// AttachmentFilename builds "<published>-<name>" with every ':' in the
// timestamp replaced by '-'. Two attachments with the same name in posts
// published at the same instant map to the same file.
func AttachmentFilename(published, name string) string {
	return strings.ReplaceAll(published, ":", "-") + "-" + name
}

// CheckName rejects upstream-supplied names that are not a single path
// element: empty, "." or "..", or containing a separator.
func CheckName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return kerrors.New(kerrors.KindMalformedAttachment, "check name", fmt.Sprintf("invalid file name %q", name))
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return kerrors.New(kerrors.KindMalformedAttachment, "check name", fmt.Sprintf("file name %q contains a path separator", name))
	}
	return nil
}

// CheckAttachment rejects a task whose target is not a file directly inside
// its partition directory
func (l Layout) CheckAttachment(task kemono.DownloadTask) error {
	if err := CheckName(task.Attachment.Name); err != nil {
		return err
	}
	if task.Post == nil {
		return kerrors.New(kerrors.KindMalformedAttachment, "check attachment", "attachment has no post")
	}
	if err := CheckName(AttachmentFilename(task.Post.Published, task.Attachment.Name)); err != nil {
		return err
	}
	return l.within(task.Partition, ".", l.AttachmentPath(task))
}

// CheckPostID rejects a post id that would place its metadata document
// outside the partition's metadata directory
func (l Layout) CheckPostID(key kemono.CreatorService, postID string) error {
	if err := CheckName(postID); err != nil {
		return err
	}
	if err := CheckName(postID + ".json"); err != nil {
		return err
	}
	return l.within(key, MetadataDir, l.MetadataPath(key, postID))
}

// within checks that path is a direct child of <partition>/<sub>
func (l Layout) within(key kemono.CreatorService, sub, path string) error {
	dir := filepath.Join(l.PartitionDir(key), sub)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.ContainsRune(rel, filepath.Separator) {
		return kerrors.New(kerrors.KindMalformedAttachment, "check path", fmt.Sprintf("%q is outside %q", path, dir))
	}
	return nil
}
