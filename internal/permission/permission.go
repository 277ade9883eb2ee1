// Package permission reports whether the camera and microphone may be used.
package permission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// State is the tri-state device permission.
type State string

const (
	Granted      State = "granted"
	Denied       State = "denied"
	Undetermined State = "undetermined"
)

// Checker reports and requests access to one capture device.
type Checker interface {
	Current(context.Context) State
	Request(context.Context) State
}

// CheckFunc performs one access check. A nil error grants access.
type CheckFunc func(context.Context) error

// Probe memoizes a check. Current reports Undetermined until the first
// Request; a denied result is re-checked on the next Request so a device
// that becomes available is picked up.
type Probe struct {
	check CheckFunc

	mu    sync.Mutex
	state State
	err   error
}

// NewProbe wraps check.
func NewProbe(check CheckFunc) *Probe {
	return &Probe{check: check, state: Undetermined}
}

func (p *Probe) Current(context.Context) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Probe) Request(ctx context.Context) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Granted {
		return p.state
	}
	if p.check == nil {
		p.state = Granted
		return p.state
	}
	p.err = p.check(ctx)
	if p.err != nil {
		p.state = Denied
	} else {
		p.state = Granted
	}
	return p.state
}

// Err returns the reason for the last denial.
func (p *Probe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Resolve returns the permission state, requesting it unless already granted.
func Resolve(ctx context.Context, c Checker) State {
	if c == nil {
		return Granted
	}
	state := c.Current(ctx)
	if state != Granted {
		state = c.Request(ctx)
	}
	return state
}

// DeviceAccess checks that a device node exists and is readable and writable
// by this process.
func DeviceAccess(path string) CheckFunc {
	return func(context.Context) error {
		if path == "" {
			return errors.New("no device configured")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("device %s: %w", path, err)
		}
		if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
			return fmt.Errorf("device %s not accessible: %w", path, err)
		}
		return nil
	}
}
