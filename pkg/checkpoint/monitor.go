package checkpoint

import (
	"os"
	"path/filepath"
	"regexp"

	"sizif/pkg/config"
	errs "sizif/pkg/errors"
	"sizif/pkg/logger"
)

const statusCheckpointKey = "checkpoint"

var (
	versionSanitizer  = regexp.MustCompile(`[^\w.]`)
	templateSanitizer = regexp.MustCompile(`[/\\:;\s]+`)
)

// Monitor owns the local notion of the current checkpoint, the ordered
// history of kept checkpoints within this instance's lifetime, the
// persisted status record, and the rotation policy.
type Monitor struct {
	stateFilename  string
	statePath      string
	checkpointPath string
	rotateNumber   int
	policy         config.PolicyConfig

	history []string
	current string
	params  Params

	// rotateFn is the per-evicted-file side channel used by the remote
	// mirror to queue remote deletes; its failures never abort rotation.
	rotateFn func(path string)

	logger logger.Logger
}

// Option customizes monitor construction
type Option func(*options)

type options struct {
	deferStatusLoad bool
}

// DeferStatusLoad constructs the monitor without touching the status
// file. The caller runs InitStatus itself, in as many passes as it needs;
// the remote mirror uses this to download the status and the checkpoint
// blob between a dead-check-disabled pass and a dead-check-enabled one.
func DeferStatusLoad() Option {
	return func(o *options) { o.deferStatusLoad = true }
}

// New creates a local checkpoint monitor for the configured version and
// folder. Unless deferred, it creates the folder and an empty status on
// first use, or loads the existing status (degrading to reset on any load
// problem, including a status naming a file that no longer exists).
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Monitor, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rotate := cfg.Storage.RotateNumber
	if rotate < 1 {
		rotate = -1 // never rotate; a zero config value is indistinguishable from unset
	}

	version := versionSanitizer.ReplaceAllString(cfg.Version, "")
	stateFilename := "currentstate_" + version + ".json"
	fileName := "model_" + version + "_" + templateSanitizer.ReplaceAllString(cfg.FileTemplate, "_")

	m := &Monitor{
		stateFilename:  stateFilename,
		statePath:      filepath.Join(cfg.Storage.LocalFolder, stateFilename),
		checkpointPath: filepath.Join(cfg.Storage.LocalFolder, fileName),
		rotateNumber:   rotate,
		policy:         cfg.Policy,
		params:         Params{},
		logger:         log.WithField("version", version),
	}

	if !o.deferStatusLoad {
		if err := m.InitStatus(true); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InitStatus creates the folder and a blank status on first use, or loads
// the existing status file. resetOnDead controls whether a status naming
// an unreadable checkpoint file degrades to reset; the remote mirror
// disables it until it has had a chance to download the missing file.
func (m *Monitor) InitStatus(resetOnDead bool) error {
	if _, err := os.Stat(m.statePath); err != nil {
		if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
			return err
		}
		return m.Reset()
	}
	return m.loadStatus(resetOnDead)
}

// OnCheckpointWritten registers a newly-written checkpoint file. It must
// be called exactly once per checkpoint, after the file is completely and
// durably written; a missing or unreadable path fails with a not_found
// error and mutates nothing. On success the checkpoint becomes current,
// the status is persisted, and rotation runs.
func (m *Monitor) OnCheckpointWritten(path string, params Params) error {
	m.logger.DebugWithFields("checkpoint written", map[string]interface{}{"path": path})
	if params == nil {
		params = Params{}
	}

	if !isReadableFile(path) {
		return errs.NotFound(path)
	}

	m.addCheckpoint(path, params.clone())
	if err := m.saveStatus(); err != nil {
		return err
	}

	m.Rotate(0)
	m.logger.Debug("checkpoint processed")
	return nil
}

// Rotate removes all checkpoint files except the most recent rotateNumber
// many. A non-positive argument falls back to the configured count; a
// never-rotate configuration is a no-op returning false. Eviction is
// oldest-first and best-effort: a failed delete is logged and skipped
// without blocking the remaining files. Returns whether the history
// actually shrank. The current checkpoint is not exempt from eviction.
func (m *Monitor) Rotate(rotateNumber int) bool {
	if rotateNumber < 1 {
		rotateNumber = m.rotateNumber
	}
	if rotateNumber < 1 {
		return false
	}

	oldSize := len(m.history)
	if oldSize <= rotateNumber {
		return false
	}
	toRemove := m.history[:oldSize-rotateNumber]
	m.history = append([]string(nil), m.history[oldSize-rotateNumber:]...)

	for _, path := range toRemove {
		if err := os.Remove(path); err != nil {
			m.logger.WithError(err).WithField("path", path).Warn("cannot remove checkpoint file")
			continue
		}
		if m.rotateFn != nil {
			m.rotateFn(path)
		}
	}

	m.logger.DebugWithFields("rotated", map[string]interface{}{"kept": len(m.history)})
	return len(m.history) != oldSize
}

// Reset clears the history and the current pointer and persists a blank
// status. Files already on disk are forgotten, not deleted.
func (m *Monitor) Reset() error {
	m.logger.DebugWithFields("reset", map[string]interface{}{"checkpoints": len(m.history)})
	m.current = ""
	m.history = m.history[:0]
	m.params = Params{}
	return m.saveStatus()
}

// SetRotateCallback registers the per-evicted-file side channel invoked
// during rotation, including the automatic rotation inside
// OnCheckpointWritten.
func (m *Monitor) SetRotateCallback(fn func(path string)) {
	m.rotateFn = fn
}

func (m *Monitor) addCheckpoint(cp string, params Params) {
	m.params = params
	m.current = cp
	if cp != "" {
		m.history = append(m.history, cp)
	}
}

// CurrentCheckpoint returns the local path of the most recently
// registered checkpoint, empty when none.
func (m *Monitor) CurrentCheckpoint() string {
	return m.current
}

// CurrentParams returns a copy of the metadata of the current checkpoint
func (m *Monitor) CurrentParams() Params {
	return m.params.clone()
}

// Checkpoints returns a copy of the checkpoint paths known to this instance
func (m *Monitor) Checkpoints() []string {
	return append([]string(nil), m.history...)
}

// CheckpointPath is the checkpoint file path template for code actually
// writing snapshots: the folder joined with the sanitized, version-
// prefixed file template.
func (m *Monitor) CheckpointPath() string {
	return m.checkpointPath
}

// StateFilename is the bare status file name (used as the remote mirror name)
func (m *Monitor) StateFilename() string {
	return m.stateFilename
}

// StatePath is the local path of the persisted status file
func (m *Monitor) StatePath() string {
	return m.statePath
}

// RotateNumber returns the configured keep count, -1 for never-rotate
func (m *Monitor) RotateNumber() int {
	return m.rotateNumber
}

// Policy returns the stored save-policy metadata. The monitor never
// interprets it; the training-callback adapter does.
func (m *Monitor) Policy() config.PolicyConfig {
	return m.policy
}
