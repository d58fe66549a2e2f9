// Package checkpoint tracks periodically-written model snapshot files on
// the local filesystem: which one is current, the ordered history of kept
// snapshots, and the rotation policy evicting stale ones.
//
// The current pointer and its metadata are persisted to a small status
// file (currentstate_<version>.json) inside the snapshot folder, written
// atomically so a reader never observes a state where the checkpoint key
// disagrees with the current pointer.
//
// Rotation is scoped to one Monitor instance's lifetime: a new instance
// only learns the single most recent checkpoint from the status file, so
// older files from a previous run are invisible to rotation unless their
// names recur.
package checkpoint
