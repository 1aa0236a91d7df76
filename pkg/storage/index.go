package storage

import (
	"io"
	"path/filepath"
	"strings"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
)

// ReencodedExtension is the container re-encoded videos are stored as
const ReencodedExtension = "mkv"

// reencodable lists the extensions whose files may have been re-encoded
var reencodable = map[string]bool{
	"mp4": true,
	"m4v": true,
}

// ReencodedName replaces every dot-delimited segment of filename that is a
// re-encodable extension with "mkv". The second result is false when no
// segment qualifies.
func ReencodedName(filename string) (string, bool) {
	segments := strings.Split(filename, ".")
	changed := false
	for i, segment := range segments {
		if reencodable[segment] {
			segments[i] = ReencodedExtension
			changed = true
		}
	}
	if !changed {
		return filename, false
	}
	return strings.Join(segments, "."), true
}

// ResumeIndex answers whether a task is already satisfied on disk and
// stores the bytes of tasks that are not. It keeps no state of its own.
type ResumeIndex struct {
	store           Store
	layout          Layout
	acceptReencoded bool
}

// NewResumeIndex creates an index over store. When acceptReencoded is set an
// mkv sibling satisfies an mp4 or m4v attachment.
func NewResumeIndex(store Store, layout Layout, acceptReencoded bool) *ResumeIndex {
	return &ResumeIndex{
		store:           store,
		layout:          layout,
		acceptReencoded: acceptReencoded,
	}
}

// Check rejects a task whose destination would fall outside its
// partition directory
func (r *ResumeIndex) Check(task kemono.DownloadTask) error {
	return r.layout.CheckAttachment(task)
}

// Destination returns the canonical path a task is written to
func (r *ResumeIndex) Destination(task kemono.DownloadTask) string {
	return r.layout.AttachmentPath(task)
}

// Lookup returns the path that satisfies task, if any. The canonical path
// wins; the re-encoded sibling is only consulted when the policy is on.
func (r *ResumeIndex) Lookup(task kemono.DownloadTask) (string, bool, error) {
	canonical := r.Destination(task)
	ok, err := r.store.Exists(canonical)
	if err != nil {
		return "", false, kerrors.Wrap(kerrors.KindFilesystem, "check existing download", err)
	}
	if ok {
		return canonical, true, nil
	}

	if !r.acceptReencoded {
		return "", false, nil
	}

	name, changed := ReencodedName(filepath.Base(canonical))
	if !changed {
		return "", false, nil
	}
	alt := filepath.Join(filepath.Dir(canonical), name)
	ok, err = r.store.Exists(alt)
	if err != nil {
		return "", false, kerrors.Wrap(kerrors.KindFilesystem, "check re-encoded download", err)
	}
	if ok {
		return alt, true, nil
	}
	return "", false, nil
}

// IsSatisfied reports whether task needs no download. Stat failures count
// as not satisfied so the download path surfaces the real error.
func (r *ResumeIndex) IsSatisfied(task kemono.DownloadTask) bool {
	_, ok, err := r.Lookup(task)
	return err == nil && ok
}

// Save writes an attachment body to the task's canonical path, creating the
// partition directory first.
func (r *ResumeIndex) Save(task kemono.DownloadTask, body io.Reader) (string, int64, error) {
	if err := r.Check(task); err != nil {
		return "", 0, err
	}

	dest := r.Destination(task)
	if err := r.store.MkdirAll(filepath.Dir(dest)); err != nil {
		return dest, 0, kerrors.Wrap(kerrors.KindFilesystem, "create download directory", err)
	}

	n, err := r.store.WriteAtomic(dest, body)
	if err != nil {
		return dest, n, kerrors.Wrap(kerrors.KindFilesystem, "save attachment", err)
	}
	return dest, n, nil
}
