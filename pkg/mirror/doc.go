// Package mirror keeps a remote FTP replica of the local checkpoint set.
//
// A Mirror wraps a local checkpoint.Monitor: every accepted write is
// followed by a synchronous status-file upload and a background upload of
// the checkpoint blob; every rotation eviction queues a background remote
// delete. The remote store is a best-effort, eventually consistent
// replica - it is never the source of truth except during bootstrap,
// when a fresh machine recovers the remote status and the latest usable
// checkpoint before the monitor declares readiness.
//
// Background task failures are parked in a single last-writer-wins slot
// and surfaced on the next foreground write; they are never silently
// lost, and never interrupt other in-flight work.
package mirror
