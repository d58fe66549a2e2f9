package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"sizif/pkg/logger"
)

// fakeServer is an in-memory FTP server with failure injection
type fakeServer struct {
	mu    sync.Mutex
	files map[string][]byte

	// recorded calls
	dials       int
	retrOffsets []uint64
	storOffsets []uint64

	// single-shot failure injection, -1 disables
	cutRetrAfter  int // serve only this many bytes on the next Retr
	failStorAfter int // accept only this many bytes on the next Stor
	failDials     int // fail this many upcoming dials
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files:         make(map[string][]byte),
		cutRetrAfter:  -1,
		failStorAfter: -1,
	}
}

func (s *fakeServer) dial() (RemoteConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.failDials > 0 {
		s.failDials--
		return nil, errors.New("connection refused")
	}
	return &fakeConn{server: s}, nil
}

type fakeConn struct {
	server *fakeServer
	closed bool
}

func (c *fakeConn) ChangeDir(path string) error { return nil }
func (c *fakeConn) MakeDir(path string) error   { return nil }

func (c *fakeConn) FileSize(name string) (int64, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	data, ok := c.server.files[name]
	if !ok {
		return 0, errors.New("550 no such file")
	}
	return int64(len(data)), nil
}

func (c *fakeConn) NameList(path string) ([]string, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	var names []string
	for name := range c.server.files {
		names = append(names, name)
	}
	return names, nil
}

func (c *fakeConn) ListDirs(path string) ([]string, error) {
	return nil, nil
}

func (c *fakeConn) Retr(name string, offset uint64) (io.ReadCloser, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	data, ok := c.server.files[name]
	if !ok {
		return nil, errors.New("550 no such file")
	}
	if offset > uint64(len(data)) {
		return nil, errors.New("551 bad offset")
	}
	c.server.retrOffsets = append(c.server.retrOffsets, offset)

	chunk := data[offset:]
	if c.server.cutRetrAfter >= 0 {
		if c.server.cutRetrAfter < len(chunk) {
			chunk = chunk[:c.server.cutRetrAfter]
		}
		c.server.cutRetrAfter = -1
	}
	return io.NopCloser(bytes.NewReader(chunk)), nil
}

func (c *fakeConn) Stor(name string, r io.Reader, offset uint64) error {
	c.server.mu.Lock()
	failAfter := c.server.failStorAfter
	c.server.failStorAfter = -1
	c.server.storOffsets = append(c.server.storOffsets, offset)
	c.server.mu.Unlock()

	var data []byte
	var err error
	if failAfter >= 0 {
		data = make([]byte, failAfter)
		var n int
		n, err = io.ReadFull(r, data)
		data = data[:n]
	} else {
		data, err = io.ReadAll(r)
	}

	c.server.mu.Lock()
	existing := c.server.files[name]
	if offset > uint64(len(existing)) {
		c.server.mu.Unlock()
		return errors.New("551 bad offset")
	}
	c.server.files[name] = append(append([]byte(nil), existing[:offset]...), data...)
	c.server.mu.Unlock()

	if failAfter >= 0 {
		return errors.New("426 connection closed; transfer aborted")
	}
	if err != nil {
		return err
	}
	return nil
}

func (c *fakeConn) Delete(name string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if _, ok := c.server.files[name]; !ok {
		return errors.New("550 no such file")
	}
	delete(c.server.files, name)
	return nil
}

func (c *fakeConn) Quit() error {
	c.closed = true
	return nil
}

func newTestClient(server *fakeServer) *Client {
	cfg := SessionConfig{
		Host:          "test.invalid",
		Port:          21,
		RetryAttempts: 3,
		RetryDelay:    0,
	}
	return NewClientWithDialer(cfg, server.dial, logger.NewTestLogger())
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func TestDownloadFresh(t *testing.T) {
	server := newFakeServer()
	content := bytes.Repeat([]byte("snapshot"), 1000)
	server.files["model.h5"] = content

	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)

	var lastTransferred, lastTotal int64
	err := client.Download(context.Background(), "model.h5", local,
		WithProgress(func(transferred, total int64) {
			lastTransferred, lastTotal = transferred, total
		}))
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(readFile(t, local), content) {
		t.Error("Downloaded content mismatch")
	}
	if lastTransferred != int64(len(content)) || lastTotal != int64(len(content)) {
		t.Errorf("Progress: got %d/%d, want %d/%d", lastTransferred, lastTotal, len(content), len(content))
	}
	if len(server.retrOffsets) != 1 || server.retrOffsets[0] != 0 {
		t.Errorf("Expected one plain retrieve, got offsets %v", server.retrOffsets)
	}
}

func TestDownloadResumesFromPartialLocal(t *testing.T) {
	server := newFakeServer()
	content := []byte("0123456789abcdef")
	server.files["model.h5"] = content

	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, content[:10], 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(readFile(t, local), content) {
		t.Error("Resumed content mismatch")
	}
	if len(server.retrOffsets) != 1 || server.retrOffsets[0] != 10 {
		t.Errorf("Expected retrieve from byte 10, got offsets %v", server.retrOffsets)
	}
}

func TestDownloadAlreadyComplete(t *testing.T) {
	server := newFakeServer()
	content := []byte("complete file")
	server.files["model.h5"] = content

	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if len(server.retrOffsets) != 0 {
		t.Errorf("Complete local file should transfer nothing, got offsets %v", server.retrOffsets)
	}
}

func TestDownloadLocalLongerThanRemote(t *testing.T) {
	server := newFakeServer()
	content := []byte("short remote")
	server.files["model.h5"] = content

	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, bytes.Repeat([]byte("x"), 100), 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(readFile(t, local), content) {
		t.Error("Oversized local file should be rewritten from scratch")
	}
	if len(server.retrOffsets) != 1 || server.retrOffsets[0] != 0 {
		t.Errorf("Expected full retrieve, got offsets %v", server.retrOffsets)
	}
}

func TestDownloadResumesAfterCutStream(t *testing.T) {
	server := newFakeServer()
	content := []byte("0123456789abcdef")
	server.files["model.h5"] = content
	server.cutRetrAfter = 5 // the first stream dies after five bytes

	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !bytes.Equal(readFile(t, local), content) {
		t.Error("Content mismatch after resumed download")
	}
	want := []uint64{0, 5}
	if len(server.retrOffsets) != 2 || server.retrOffsets[0] != want[0] || server.retrOffsets[1] != want[1] {
		t.Errorf("Retrieve offsets: got %v, want %v", server.retrOffsets, want)
	}
}

func TestDownloadMissingRemoteFails(t *testing.T) {
	server := newFakeServer()
	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)

	err := client.Download(context.Background(), "missing.h5", local)
	if err == nil {
		t.Fatal("Expected error for missing remote file")
	}
	// every attempt of the budget was used
	if server.dials != 3 {
		t.Errorf("Expected 3 attempts, got %d dials", server.dials)
	}
}

func TestUploadFresh(t *testing.T) {
	server := newFakeServer()
	content := bytes.Repeat([]byte("weights"), 500)

	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	var lastTransferred int64
	err := client.Upload(context.Background(), local, "model.h5",
		WithProgress(func(transferred, total int64) { lastTransferred = transferred }))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if !bytes.Equal(server.files["model.h5"], content) {
		t.Error("Uploaded content mismatch")
	}
	if lastTransferred != int64(len(content)) {
		t.Errorf("Progress: got %d, want %d", lastTransferred, len(content))
	}
	if len(server.storOffsets) != 1 || server.storOffsets[0] != 0 {
		t.Errorf("Expected one plain store, got offsets %v", server.storOffsets)
	}
}

func TestUploadRewritesExistingRemote(t *testing.T) {
	server := newFakeServer()
	server.files["model.h5"] = bytes.Repeat([]byte("old"), 100)

	content := []byte("new content")
	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	if err := client.Upload(context.Background(), local, "model.h5"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// the first attempt rewrites from scratch even when the remote exists
	if !bytes.Equal(server.files["model.h5"], content) {
		t.Error("Existing remote should be fully rewritten")
	}
	if len(server.storOffsets) != 1 || server.storOffsets[0] != 0 {
		t.Errorf("Expected store from byte 0, got offsets %v", server.storOffsets)
	}
}

func TestUploadResumesAfterFailure(t *testing.T) {
	server := newFakeServer()
	content := []byte("0123456789abcdef")
	server.failStorAfter = 4 // the first store dies after four bytes

	local := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	if err := client.Upload(context.Background(), local, "model.h5"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if !bytes.Equal(server.files["model.h5"], content) {
		t.Errorf("Content after resumed upload: got %q, want %q", server.files["model.h5"], content)
	}
	// retry re-queried the remote size and continued from there
	want := []uint64{0, 4}
	if len(server.storOffsets) != 2 || server.storOffsets[0] != want[0] || server.storOffsets[1] != want[1] {
		t.Errorf("Store offsets: got %v, want %v", server.storOffsets, want)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	server := newFakeServer()
	local := filepath.Join(t.TempDir(), "empty.h5")
	if err := os.WriteFile(local, nil, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server)
	called := false
	err := client.Upload(context.Background(), local, "empty.h5",
		WithProgress(func(transferred, total int64) { called = true }))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if got, ok := server.files["empty.h5"]; !ok || len(got) != 0 {
		t.Error("Empty file should exist remotely with zero bytes")
	}
	if !called {
		t.Error("Progress should still fire once for an empty file")
	}
}

func TestRemove(t *testing.T) {
	server := newFakeServer()
	server.files["model.h5"] = []byte("bytes")

	client := newTestClient(server)
	if err := client.Remove(context.Background(), "model.h5"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := server.files["model.h5"]; ok {
		t.Error("File should be deleted")
	}

	if err := client.Remove(context.Background(), "model.h5"); err == nil {
		t.Error("Removing a missing file should fail")
	}
}

func TestReconnectAfterDialFailure(t *testing.T) {
	server := newFakeServer()
	server.files["model.h5"] = []byte("bytes")
	server.failDials = 1

	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local); err != nil {
		t.Fatalf("Download should survive one dial failure: %v", err)
	}
	if server.dials != 2 {
		t.Errorf("Expected 2 dials, got %d", server.dials)
	}
}

func TestBorrowedConnUsedWithoutDialing(t *testing.T) {
	server := newFakeServer()
	server.files["model.h5"] = []byte("bytes")

	conn, err := server.dial()
	if err != nil {
		t.Fatal(err)
	}
	dialsBefore := server.dials

	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)
	if err := client.Download(context.Background(), "model.h5", local, WithConn(conn)); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if server.dials != dialsBefore {
		t.Error("Successful first attempt on a borrowed session must not dial")
	}
	// session stays owned by the caller
	if conn.(*fakeConn).closed {
		t.Error("Borrowed session must not be closed by the transfer")
	}
}

func TestContextCancelStopsRetrying(t *testing.T) {
	server := newFakeServer()
	server.failDials = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := filepath.Join(t.TempDir(), "model.h5")
	client := newTestClient(server)
	err := client.Download(ctx, "model.h5", local)
	if err == nil {
		t.Fatal("Expected error with cancelled context")
	}
	if server.dials > 1 {
		t.Errorf("Cancelled context should not keep retrying, got %d dials", server.dials)
	}
}
