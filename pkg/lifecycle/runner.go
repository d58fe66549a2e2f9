package lifecycle

import (
	"fmt"

	"sizif/pkg/checkpoint"
	"sizif/pkg/config"
	"sizif/pkg/logger"
)

// Notifier is the contract a training loop consumes after durably
// writing a snapshot file. The file must exist and be readable at call
// time; a missing file yields a not_found error and mutates nothing.
type Notifier interface {
	OnCheckpointWritten(path string, params checkpoint.Params) error
}

// Store is the checkpoint store surface the Runner needs. Both the
// local monitor and the FTP mirror satisfy it.
type Store interface {
	Notifier
	Reset() error
	CurrentCheckpoint() string
	CurrentParams() checkpoint.Params
	CheckpointPath() string
}

// Model abstracts snapshot i/o on the trained model
type Model interface {
	Save(path string) error
	SaveWeights(path string) error
	Load(path string) error
	LoadWeights(path string) error
}

// TrainFunc runs the actual training starting from initialEpoch. The
// caller invokes hook.OnEpochEnd after every finished epoch.
type TrainFunc func(initialEpoch int, hook *EpochHook) error

// Runner couples a model with a checkpoint store
type Runner struct {
	model  Model
	store  Store
	policy config.PolicyConfig
	logger logger.Logger
}

func NewRunner(model Model, store Store, policy config.PolicyConfig, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{model: model, store: store, policy: policy, logger: log}
}

// Fit wraps a training run with state recovery and backup. With restart
// set the store statistics are cleared and the model itself is left
// untouched; otherwise the current checkpoint, if any, is loaded first.
// Training resumes from the epoch recorded with the current checkpoint.
func (r *Runner) Fit(restart bool, train TrainFunc) error {
	if restart {
		if err := r.store.Reset(); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		r.logger.Info("store reset before fitting")
	} else if err := r.Restore(); err != nil {
		return err
	}

	hook := NewEpochHook(r.model, r.store, r.policy, r.logger)
	return train(r.initialEpoch(), hook)
}

// Restore loads the current checkpoint into the model if one is known.
// A store with no current checkpoint is not an error.
func (r *Runner) Restore() error {
	cp := r.store.CurrentCheckpoint()
	if cp == "" {
		r.logger.Info("no checkpoint to restore, starting fresh")
		return nil
	}

	var err error
	if r.policy.SaveWeightsOnly {
		err = r.model.LoadWeights(cp)
	} else {
		err = r.model.Load(cp)
	}
	if err != nil {
		return fmt.Errorf("restore checkpoint %s: %w", cp, err)
	}
	r.logger.WithField("checkpoint", cp).Info("model state restored")
	return nil
}

// initialEpoch recovers the epoch counter stored with the current
// checkpoint. JSON round-trips numbers as float64.
func (r *Runner) initialEpoch() int {
	switch v := r.store.CurrentParams()["epoch"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
