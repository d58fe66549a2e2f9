// Package lifecycle bridges a training loop to a checkpoint store.
//
// Runner is an explicit facade over a caller-supplied Model and a
// Store: Fit restores or resets saved state, resolves the initial
// epoch, and hands the training function an EpochHook. The hook
// interprets the save policy (period gating, best-only monitoring,
// filename templates), writes snapshots through the model and then
// notifies the store.
package lifecycle
