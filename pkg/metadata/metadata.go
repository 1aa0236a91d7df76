package metadata

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/storage"
)

// Writer records each post as a JSON document next to its attachments.
// Documents are written once and never rewritten, even if the upstream
// post changes later.
type Writer struct {
	store  storage.Store
	layout storage.Layout
}

// NewWriter creates a metadata writer
func NewWriter(store storage.Store, layout storage.Layout) *Writer {
	return &Writer{store: store, layout: layout}
}

// Path returns where the document for a post lives
func (w *Writer) Path(key kemono.CreatorService, postID string) string {
	return w.layout.MetadataPath(key, postID)
}

// Record writes the post's document if it does not exist yet and reports
// whether it wrote anything.
func (w *Writer) Record(key kemono.CreatorService, post *kemono.Post) (bool, error) {
	if post.ID == "" {
		return false, kerrors.New(kerrors.KindMalformedResponse, "record metadata", "post has no id")
	}
	if err := w.layout.CheckPostID(key, post.ID); err != nil {
		return false, kerrors.Wrap(kerrors.KindMalformedResponse, "record metadata", err)
	}

	path := w.Path(key, post.ID)
	exists, err := w.store.Exists(path)
	if err != nil {
		return false, kerrors.Wrap(kerrors.KindFilesystem, "check metadata", err)
	}
	if exists {
		return false, nil
	}

	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return false, kerrors.Wrap(kerrors.KindGeneric, "encode metadata", err)
	}

	if err := w.store.MkdirAll(filepath.Dir(path)); err != nil {
		return false, kerrors.Wrap(kerrors.KindFilesystem, "create metadata directory", err)
	}
	if _, err := w.store.WriteAtomic(path, bytes.NewReader(data)); err != nil {
		return false, kerrors.Wrap(kerrors.KindFilesystem, "write metadata", err)
	}
	return true, nil
}
