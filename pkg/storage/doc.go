// Package storage owns the on-disk download tree.
//
// The tree is laid out as:
//
//	<root>/<creator>/<service>/<published>-<name>
//	<root>/<creator>/<service>/metadata/<post-id>.json
//
// Layout computes those paths. Store abstracts the filesystem over afero so
// tests run against an in-memory tree; FSStore writes files through a hidden
// ".part" temporary and renames it into place, so a crash never leaves a
// truncated attachment under its final name.
//
// ResumeIndex answers whether an attachment is already on disk. The tree
// itself is the only resume state: a file that exists under its canonical
// name counts as downloaded, and with re-encoded substitution enabled an
// .mkv of the same stem satisfies an .mp4 or .m4v.
//
// Usage:
//
//	index := storage.NewResumeIndex(storage.NewOSStore(), storage.NewLayout("download"), false)
//	if !index.IsSatisfied(task) {
//		path, n, err := index.Save(task, body)
//		...
//	}
package storage
