package transfer

import (
	"context"
	"fmt"
	"io"
	"os"

	errs "sizif/pkg/errors"
	"sizif/pkg/logger"
	"sizif/pkg/retry"
)

// Client runs blocking download/upload/delete jobs against one FTP server
type Client struct {
	cfg    SessionConfig
	dial   Dialer
	logger logger.Logger
}

// NewClient creates a transfer client dialing real FTP sessions
func NewClient(cfg SessionConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		cfg:    cfg,
		dial:   func() (RemoteConn, error) { return Dial(cfg) },
		logger: log,
	}
}

// NewClientWithDialer creates a transfer client with a custom session
// dialer, used by tests to substitute an in-memory server.
func NewClientWithDialer(cfg SessionConfig, dial Dialer, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{cfg: cfg, dial: dial, logger: log}
}

// Option customizes a single transfer call
type Option func(*callOpts)

type callOpts struct {
	conn     RemoteConn
	progress Progress
}

// WithConn reuses an already-open session for the first attempt, skipping
// reconnect and login. The session must already be in the target remote
// directory and remains owned (and closed) by the caller; retry attempts
// after a failure dial fresh sessions owned by the task.
func WithConn(conn RemoteConn) Option {
	return func(o *callOpts) { o.conn = conn }
}

// WithProgress registers a per-block progress callback
func WithProgress(p Progress) Option {
	return func(o *callOpts) { o.progress = p }
}

// Download fetches remoteName from the server's remote folder into
// localPath with resume and reconnect support. A partially-downloaded
// local file, whether from an earlier attempt of this call or from a
// previous process, is continued from its current length rather than
// rewritten. Success means the local length equals the remote size.
func (c *Client) Download(ctx context.Context, remoteName, localPath string, opts ...Option) error {
	o := applyOpts(opts)
	log := c.logger.WithFields(map[string]interface{}{
		"remote": remoteName,
		"local":  localPath,
	})
	log.Info("downloading")

	f, err := os.OpenFile(localPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, "open local file", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, "seek local file", err)
	}

	session := c.newSessionSource(o.conn)
	err = retry.Do(func() error {
		conn, release, err := session.acquire()
		if err != nil {
			return errs.Transport("connect", err)
		}
		defer release()

		size, err := conn.FileSize(remoteName)
		if err != nil {
			return errs.Transport(fmt.Sprintf("size of %q", remoteName), err)
		}
		if offset == size {
			// already fully present locally, nothing to transfer
			return nil
		}
		if offset > size {
			log.WarnWithFields("local file longer than remote, rewriting", map[string]interface{}{
				"local_size":  offset,
				"remote_size": size,
			})
			if err := f.Truncate(0); err != nil {
				return errs.Wrap(errs.ErrorTypeUnknown, "truncate local file", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return errs.Wrap(errs.ErrorTypeUnknown, "seek local file", err)
			}
			offset = 0
		}

		r, err := conn.Retr(remoteName, uint64(offset))
		if err != nil {
			return errs.Transport(fmt.Sprintf("retrieve %q from byte %d", remoteName, offset), err)
		}

		buf := make([]byte, 32*1024)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					r.Close()
					return errs.Wrap(errs.ErrorTypeUnknown, "write local file", werr)
				}
				offset += int64(n)
				if o.progress != nil {
					o.progress(offset, size)
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				r.Close()
				return errs.Transport(fmt.Sprintf("stream %q at byte %d", remoteName, offset), rerr)
			}
		}
		if err := r.Close(); err != nil {
			return errs.Transport(fmt.Sprintf("finish retrieve of %q", remoteName), err)
		}
		if offset != size {
			// server closed the stream early; next attempt resumes from offset
			return errs.Transport(fmt.Sprintf("short transfer of %q", remoteName),
				fmt.Errorf("got %d of %d bytes", offset, size))
		}

		log.InfoWithFields("downloaded", map[string]interface{}{"bytes": offset})
		return nil
	}, c.retryConfig(ctx))
	if err != nil {
		return err
	}
	return f.Sync()
}

// Upload sends localPath to the server's remote folder as remoteName with
// resume and reconnect support. An existing remote file is rewritten on
// the first attempt; a retry after a mid-transfer failure re-queries the
// remote size fresh and continues from there (the remote file may have
// grown during a prior partial attempt).
func (c *Client) Upload(ctx context.Context, localPath, remoteName string, opts ...Option) error {
	o := applyOpts(opts)
	log := c.logger.WithFields(map[string]interface{}{
		"local":  localPath,
		"remote": remoteName,
	})
	log.Info("uploading")

	f, err := os.Open(localPath)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, "open local file", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, "stat local file", err)
	}
	total := fi.Size()

	session := c.newSessionSource(o.conn)
	firstAccess := true
	return retry.Do(func() error {
		conn, release, err := session.acquire()
		if err != nil {
			return errs.Transport("connect", err)
		}
		defer release()

		names, err := conn.NameList("")
		if err != nil {
			return errs.Transport("list remote folder", err)
		}

		var offset int64
		if contains(names, remoteName) {
			if firstAccess {
				log.Debug("remote file exists, will be rewritten")
			} else {
				offset, err = conn.FileSize(remoteName)
				if err != nil {
					return errs.Transport(fmt.Sprintf("size of %q", remoteName), err)
				}
				log.DebugWithFields("resuming upload", map[string]interface{}{"offset": offset})
			}
		}
		if offset > total {
			// remote is longer than the source, rewrite from scratch
			offset = 0
		}
		firstAccess = false

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return errs.Wrap(errs.ErrorTypeUnknown, "seek local file", err)
		}

		reader := &countingReader{r: f, transferred: offset, total: total, progress: o.progress}
		if err := conn.Stor(remoteName, reader, uint64(offset)); err != nil {
			return errs.Transport(fmt.Sprintf("store %q at byte %d", remoteName, offset), err)
		}
		if total == 0 && o.progress != nil {
			o.progress(0, 0)
		}

		log.InfoWithFields("uploaded", map[string]interface{}{"bytes": total})
		return nil
	}, c.retryConfig(ctx))
}

// Remove deletes remoteName from the server's remote folder, with the
// same reconnect/retry policy as the transfers.
func (c *Client) Remove(ctx context.Context, remoteName string, opts ...Option) error {
	o := applyOpts(opts)
	session := c.newSessionSource(o.conn)
	return retry.Do(func() error {
		conn, release, err := session.acquire()
		if err != nil {
			return errs.Transport("connect", err)
		}
		defer release()

		if err := conn.Delete(remoteName); err != nil {
			return errs.Transport(fmt.Sprintf("delete %q", remoteName), err)
		}
		c.logger.InfoWithFields("removed remote file", map[string]interface{}{"remote": remoteName})
		return nil
	}, c.retryConfig(ctx))
}

func (c *Client) retryConfig(ctx context.Context) *retry.Config {
	attempts := c.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 8
	}
	return &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: c.cfg.RetryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger,
	}
}

// sessionSource hands out one connection per attempt: the borrowed
// caller session exactly once, then fresh dials owned by the task.
type sessionSource struct {
	dial     Dialer
	folder   string
	borrowed RemoteConn
}

func (c *Client) newSessionSource(borrowed RemoteConn) *sessionSource {
	return &sessionSource{dial: c.dial, folder: c.cfg.RemoteFolder, borrowed: borrowed}
}

func (s *sessionSource) acquire() (RemoteConn, func(), error) {
	if s.borrowed != nil {
		conn := s.borrowed
		s.borrowed = nil
		return conn, func() {}, nil
	}
	conn, err := s.dial()
	if err != nil {
		return nil, nil, err
	}
	if s.folder != "" {
		if err := conn.ChangeDir(s.folder); err != nil {
			_ = conn.Quit()
			return nil, nil, err
		}
	}
	return conn, func() { _ = conn.Quit() }, nil
}

func applyOpts(opts []Option) *callOpts {
	o := &callOpts{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
