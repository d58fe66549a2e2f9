package transfer

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// RemoteConn is the slice of an FTP session the transfer tasks need.
// Offsets merge the plain and resume variants of the underlying protocol
// commands: offset 0 issues a plain RETR/STOR because some servers reject
// a REST 0 prefix.
type RemoteConn interface {
	ChangeDir(path string) error
	MakeDir(path string) error
	FileSize(name string) (int64, error)
	NameList(path string) ([]string, error)
	ListDirs(path string) ([]string, error)
	Retr(name string, offset uint64) (io.ReadCloser, error)
	Stor(name string, r io.Reader, offset uint64) error
	Delete(name string) error
	Quit() error
}

// SessionConfig carries everything needed to open an FTP session
type SessionConfig struct {
	Host         string
	Port         int
	Login        string
	Password     string
	RemoteFolder string
	// RetryAttempts is the per-transfer attempt budget
	RetryAttempts int
	// RetryDelay is the fixed pause between reconnect attempts
	RetryDelay time.Duration
	// Timeout bounds a single blocking socket operation
	Timeout time.Duration
}

// Addr returns the dial address for the configured server
func (c SessionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialer opens a fresh authenticated session
type Dialer func() (RemoteConn, error)

// Dial connects and logs in to the configured FTP server. The returned
// session is positioned at the server's default directory; callers change
// into the remote folder themselves.
func Dial(cfg SessionConfig) (RemoteConn, error) {
	conn, err := ftp.Dial(cfg.Addr(), ftp.DialWithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Addr(), err)
	}
	if err := conn.Login(cfg.Login, cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login %s: %w", cfg.Addr(), err)
	}
	return &ftpConn{conn: conn}, nil
}

// ftpConn adapts *ftp.ServerConn to RemoteConn
type ftpConn struct {
	conn *ftp.ServerConn
}

func (f *ftpConn) ChangeDir(path string) error {
	return f.conn.ChangeDir(path)
}

func (f *ftpConn) MakeDir(path string) error {
	return f.conn.MakeDir(path)
}

func (f *ftpConn) FileSize(name string) (int64, error) {
	return f.conn.FileSize(name)
}

func (f *ftpConn) NameList(path string) ([]string, error) {
	return f.conn.NameList(path)
}

func (f *ftpConn) ListDirs(path string) ([]string, error) {
	entries, err := f.conn.List(path)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.Type == ftp.EntryTypeFolder {
			dirs = append(dirs, entry.Name)
		}
	}
	return dirs, nil
}

func (f *ftpConn) Retr(name string, offset uint64) (io.ReadCloser, error) {
	if offset == 0 {
		return f.conn.Retr(name)
	}
	return f.conn.RetrFrom(name, offset)
}

func (f *ftpConn) Stor(name string, r io.Reader, offset uint64) error {
	if offset == 0 {
		return f.conn.Stor(name, r)
	}
	return f.conn.StorFrom(name, r, offset)
}

func (f *ftpConn) Delete(name string) error {
	return f.conn.Delete(name)
}

func (f *ftpConn) Quit() error {
	return f.conn.Quit()
}
