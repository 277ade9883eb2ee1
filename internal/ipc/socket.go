package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// SocketName is the owner socket file inside $XDG_RUNTIME_DIR.
const SocketName = "navieyes.sock"

var ErrAlreadyRunning = errors.New("navieyes owner already running")

func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// AcquireOptions tunes how hard Acquire tries to take over a leftover socket.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	// OnStale runs after a dead socket file was removed.
	OnStale func(path string)
}

// Owner is the listening end of the owner socket. Close stops listening and
// unlinks the socket file.
type Owner struct {
	net.Listener
	Path string

	closeOnce sync.Once
	closeErr  error
}

func (o *Owner) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.Listener.Close()
		if err := os.Remove(o.Path); err != nil && !errors.Is(err, os.ErrNotExist) && o.closeErr == nil {
			o.closeErr = fmt.Errorf("remove socket %s: %w", o.Path, err)
		}
	})
	return o.closeErr
}

// Acquire makes this process the owner of path. A socket that answers a
// status probe belongs to a live owner and yields ErrAlreadyRunning. A file
// nobody accepts on is removed and the listen retried with a short backoff.
// A socket that accepts but never answers is left alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			if err := os.Chmod(path, 0o600); err != nil {
				_ = listener.Close()
				return nil, fmt.Errorf("restrict socket %s: %w", path, err)
			}
			return &Owner{Listener: listener, Path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, err := Probe(ctx, path, opts.ProbeTimeout)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case err != nil:
			return nil, fmt.Errorf("probe existing socket %s: %w", path, err)
		case attempt > opts.Retries:
			return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, opts.Retries)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if opts.OnStale != nil {
			opts.OnStale(path)
		}

		if attempt == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
}
