// Package syncer mirrors a creator's posts and attachments into a local
// download tree.
//
// A run is enumerate, index, download: every listing page is fetched until
// an empty one, each post's metadata is written once, and the attachments
// that are not on disk yet are handed to the download scheduler. Nothing is
// remembered between runs, so re-running a creator only fetches what is
// missing. UpdateAll repeats this for every creator/service directory found
// under the download root.
package syncer
