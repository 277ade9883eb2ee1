// Package output owns the single audio output slot shared by speech synthesis
// and audio file playback.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/navieyes/internal/media"
)

// Voice carries synthesis parameters. Pitch and Rate are relative, 1.0 = normal.
type Voice struct {
	Name  string
	Pitch float64
	Rate  float64
}

// Synthesizer speaks text aloud. Speak blocks until the utterance ends, ctx is
// cancelled, or Stop is called.
type Synthesizer interface {
	Speak(ctx context.Context, text string, voice Voice) error
	Stop()
}

// Handle is one prepared audio file playback. Done delivers exactly one event.
type Handle interface {
	Play() error
	Stop()
	Release()
	Done() <-chan error
}

// Player prepares a Handle for a local audio file.
type Player interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// Slot serializes everything audible. At most one utterance or one handle
// holds the slot at a time; starting either stops whatever held it before.
type Slot struct {
	synth  Synthesizer
	player Player
	voice  Voice
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	utterance  context.CancelFunc
	held       *heldHandle
}

type heldHandle struct {
	handle      Handle
	stopped     chan struct{}
	stopOnce    sync.Once
	releaseOnce sync.Once
}

func (h *heldHandle) stop() {
	h.stopOnce.Do(func() {
		close(h.stopped)
		h.handle.Stop()
	})
}

func (h *heldHandle) release() {
	h.releaseOnce.Do(h.handle.Release)
}

// NewSlot builds a slot around the speech and playback collaborators.
func NewSlot(synth Synthesizer, player Player, voice Voice, logger *slog.Logger) *Slot {
	return &Slot{synth: synth, player: player, voice: voice, logger: logger}
}

// StopAll silences the slot. Afterwards no speech is synthesizing and no
// handle holds the device. Calling it on an idle slot does nothing.
func (s *Slot) StopAll() {
	s.claim()
}

// claim stops the current holder and returns the generation owned by the caller.
func (s *Slot) claim() uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	cancel := s.utterance
	held := s.held
	s.utterance = nil
	s.held = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		if s.synth != nil {
			s.synth.Stop()
		}
		s.debug("speech stopped")
	}
	if held != nil {
		held.stop()
		held.release()
		s.debug("playback stopped")
	}
	return gen
}

// Active reports whether speech or a playback handle currently holds the slot.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterance != nil || s.held != nil
}

// Speak stops the slot and speaks text with the configured voice. It returns
// nil when the utterance is interrupted by a later StopAll. A cancelled ctx
// leaves the slot untouched.
func (s *Slot) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gen := s.claim()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.synth == nil {
		return errors.New("speech synthesizer not configured")
	}

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.utterance = cancel
	s.mu.Unlock()

	err := s.synth.Speak(speakCtx, text, s.voice)

	s.mu.Lock()
	superseded := s.generation != gen
	if !superseded {
		s.utterance = nil
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if superseded {
			return nil
		}
	}
	return err
}

// PlayFile stops the slot, plays path through exactly one handle, waits for
// completion, and releases the handle exactly once. It returns nil when the
// playback is interrupted by a later StopAll. A cancelled ctx leaves the
// slot untouched.
func (s *Slot) PlayFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gen := s.claim()
	if s.player == nil {
		return fmt.Errorf("%w: player not configured", media.ErrPlayback)
	}

	handle, err := s.player.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", media.ErrPlayback, path, err)
	}

	held := &heldHandle{handle: handle, stopped: make(chan struct{})}
	defer held.release()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.held = held
	s.mu.Unlock()
	defer s.drop(held)

	if err := handle.Play(); err != nil {
		return fmt.Errorf("%w: start %s: %v", media.ErrPlayback, path, err)
	}

	select {
	case err := <-handle.Done():
		if err != nil {
			select {
			case <-held.stopped:
				return nil
			default:
			}
			return fmt.Errorf("%w: %v", media.ErrPlayback, err)
		}
		return nil
	case <-held.stopped:
		return nil
	case <-ctx.Done():
		held.stop()
		return ctx.Err()
	}
}

// drop clears held from the slot if it still owns it.
func (s *Slot) drop(held *heldHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == held {
		s.held = nil
	}
}

func (s *Slot) debug(msg string) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(msg, "component", "output")
}
