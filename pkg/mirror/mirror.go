package mirror

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"sizif/internal/worker"
	"sizif/pkg/checkpoint"
	"sizif/pkg/config"
	errs "sizif/pkg/errors"
	"sizif/pkg/logger"
	"sizif/pkg/transfer"
)

// remote folder is a single flat directory name, no subfolders
var remoteFolderSanitizer = regexp.MustCompile(`[/\\:;\s]+`)

// Mirror composes a local checkpoint monitor with a background pool
// mirroring every write and eviction to a remote FTP store.
type Mirror struct {
	local  *checkpoint.Monitor
	client *transfer.Client
	pool   *worker.Pool

	remoteFolder         string
	dieOnTransportErrors bool

	failure failureCell
	logger  logger.Logger
}

// New bootstraps a remote-mirrored monitor against the configured FTP
// server: it ensures the remote folder exists, recovers the remote
// status file and, if needed, the latest checkpoint blob, and only then
// finishes local initialization. A fresh machine joining an existing
// checkpoint set ends up with a loadable current checkpoint or a clean
// reset, never a pointer it cannot satisfy.
func New(cfg *config.Config, log logger.Logger) (*Mirror, error) {
	session := sessionConfig(cfg)
	return newMirror(cfg, session, func() (transfer.RemoteConn, error) {
		return transfer.Dial(session)
	}, log)
}

// NewWithDialer is New with a custom session dialer, used by tests
func NewWithDialer(cfg *config.Config, dial transfer.Dialer, log logger.Logger) (*Mirror, error) {
	return newMirror(cfg, sessionConfig(cfg), dial, log)
}

func sessionConfig(cfg *config.Config) transfer.SessionConfig {
	return transfer.SessionConfig{
		Host:          cfg.FTP.Host,
		Port:          cfg.FTP.Port,
		Login:         cfg.FTP.Login,
		Password:      cfg.FTP.Password,
		RemoteFolder:  remoteFolderSanitizer.ReplaceAllString(cfg.FTP.RemoteFolder, "_"),
		RetryAttempts: cfg.FTP.RetryAttempts,
		RetryDelay:    cfg.FTP.RetryDelay,
		Timeout:       cfg.FTP.Timeout,
	}
}

func newMirror(cfg *config.Config, session transfer.SessionConfig, dial transfer.Dialer, log logger.Logger) (*Mirror, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	local, err := checkpoint.New(cfg, log, checkpoint.DeferStatusLoad())
	if err != nil {
		return nil, err
	}

	m := &Mirror{
		local:                local,
		client:               transfer.NewClientWithDialer(session, dial, log),
		remoteFolder:         session.RemoteFolder,
		dieOnTransportErrors: cfg.FTP.DieOnTransportErrors,
		logger:               log,
	}

	if err := m.bootstrap(dial); err != nil {
		return nil, err
	}

	local.SetRotateCallback(m.queueRemoteDelete)

	m.pool = worker.NewPool(cfg.FTP.WorkerPoolSize, log)
	m.pool.Start()

	return m, nil
}

// bootstrap runs the startup reconciliation in its required order. The
// dead-checkpoint check stays disabled until the blob download has had
// its chance; resetting earlier would discard a recoverable pointer.
func (m *Mirror) bootstrap(dial transfer.Dialer) error {
	ctx := context.Background()

	conn, err := dial()
	if err != nil {
		return errs.Transport("bootstrap connect", err)
	}
	defer conn.Quit()

	dirs, err := conn.ListDirs("")
	if err != nil {
		return errs.Transport("list remote root", err)
	}
	if !containsName(dirs, m.remoteFolder) {
		if err := conn.MakeDir(m.remoteFolder); err != nil {
			return errs.Transport("create remote folder", err)
		}
		m.logger.WithField("folder", m.remoteFolder).Info("created remote folder")
	}
	if err := conn.ChangeDir(m.remoteFolder); err != nil {
		return errs.Transport("enter remote folder", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.local.StatePath()), 0755); err != nil {
		return err
	}

	names, err := conn.NameList("")
	if err != nil {
		return errs.Transport("list remote folder", err)
	}

	if containsName(names, m.local.StateFilename()) {
		// the remote status is authoritative here; downloading it onto
		// the local path directly would resume into a stale local copy
		// instead of replacing it
		tempPath := m.local.StatePath() + ".remote"
		_ = os.Remove(tempPath)
		err := m.client.Download(ctx, m.local.StateFilename(), tempPath, transfer.WithConn(conn))
		if err == nil {
			err = os.Rename(tempPath, m.local.StatePath())
		}
		if err != nil {
			_ = os.Remove(tempPath)
			if m.dieOnTransportErrors {
				return err
			}
			m.logger.WithError(err).Error("cannot download remote status, using local state")
		}
	}

	// first pass: learn the pointer without judging the missing blob
	if err := m.local.InitStatus(false); err != nil {
		return err
	}

	if cp := m.local.CurrentCheckpoint(); cp != "" {
		if _, statErr := os.Stat(cp); statErr != nil {
			name := filepath.Base(cp)
			names, err := conn.NameList("")
			if err != nil {
				return errs.Transport("list remote folder", err)
			}
			if containsName(names, name) {
				err := m.client.Download(ctx, name, cp, transfer.WithConn(conn))
				if err != nil {
					if m.dieOnTransportErrors {
						return err
					}
					m.logger.WithError(err).Error("cannot download current checkpoint")
				}
			} else {
				m.logger.WithField("checkpoint", name).Warn("current checkpoint absent from remote")
			}
		}
	}

	// second pass: if the blob is still unavailable, fall back to reset
	return m.local.InitStatus(true)
}

// OnCheckpointWritten registers a newly-written checkpoint locally, then
// synchronously re-uploads the status file and queues a background upload
// of the blob. A failure recorded by an earlier background task surfaces
// here first - raised when die_on_transport_errors is set, logged
// otherwise, cleared either way. Status upload failures are always hard:
// a stale remote status could make a future bootstrap recover the wrong
// checkpoint.
func (m *Mirror) OnCheckpointWritten(path string, params checkpoint.Params) error {
	if err := m.failure.take(); err != nil {
		if m.dieOnTransportErrors {
			return err
		}
		m.logger.WithError(err).Error("background task had failed")
	}

	if err := m.local.OnCheckpointWritten(path, params); err != nil {
		return err
	}

	if err := m.client.Upload(context.Background(), m.local.StatePath(), m.local.StateFilename()); err != nil {
		return err
	}

	name := filepath.Base(path)
	err := m.pool.Submit(worker.Task{
		Name: "upload " + name,
		Run: func() error {
			return m.client.Upload(context.Background(), path, name)
		},
		OnError: m.failure.set,
	})
	if err != nil {
		m.logger.WithError(err).WithField("checkpoint", name).Warn("cannot queue checkpoint upload")
	}
	return nil
}

// Push synchronously uploads the status file and, when one is known,
// the current checkpoint to the remote folder. Used for manual
// re-mirroring; the training path uploads in the background instead.
func (m *Mirror) Push(ctx context.Context, progress transfer.Progress) error {
	if err := m.client.Upload(ctx, m.local.StatePath(), m.local.StateFilename()); err != nil {
		return err
	}
	cp := m.local.CurrentCheckpoint()
	if cp == "" {
		return nil
	}
	return m.client.Upload(ctx, cp, filepath.Base(cp), transfer.WithProgress(progress))
}

// Rotate trims local checkpoints and queues a remote delete for every
// locally-evicted file. Returns whether any local files were removed.
func (m *Mirror) Rotate(rotateNumber int) bool {
	return m.local.Rotate(rotateNumber)
}

// Reset clears the local monitor state. The remote replica is left
// untouched; its status converges on the next checkpoint write.
func (m *Mirror) Reset() error {
	return m.local.Reset()
}

// Close stops the background pool, draining already-queued tasks
func (m *Mirror) Close() {
	m.pool.Stop()
}

// queueRemoteDelete mirrors a local rotation eviction to the remote
// store. Delete failures are non-critical: always swallowed-and-logged
// by the pool, never recorded for the foreground.
func (m *Mirror) queueRemoteDelete(path string) {
	name := filepath.Base(path)
	err := m.pool.Submit(worker.Task{
		Name: "delete " + name,
		Run: func() error {
			return m.client.Remove(context.Background(), name)
		},
	})
	if err != nil {
		m.logger.WithError(err).WithField("checkpoint", name).Warn("cannot queue remote delete")
	}
}

// Local exposes the wrapped local monitor for read access
func (m *Mirror) Local() *checkpoint.Monitor {
	return m.local
}

// CurrentCheckpoint returns the local path of the current checkpoint
func (m *Mirror) CurrentCheckpoint() string {
	return m.local.CurrentCheckpoint()
}

// CurrentParams returns a copy of the current checkpoint metadata
func (m *Mirror) CurrentParams() checkpoint.Params {
	return m.local.CurrentParams()
}

// Checkpoints returns a copy of the known checkpoint paths
func (m *Mirror) Checkpoints() []string {
	return m.local.Checkpoints()
}

// CheckpointPath is the checkpoint file path template for snapshot writers
func (m *Mirror) CheckpointPath() string {
	return m.local.CheckpointPath()
}

// failureCell is the single last-writer-wins slot carrying a background
// failure to the foreground. Concurrent failures may clobber each other;
// only the most recent one is surfaced.
type failureCell struct {
	mu  sync.Mutex
	err error
}

func (f *failureCell) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *failureCell) take() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
