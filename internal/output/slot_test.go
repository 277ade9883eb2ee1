package output

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/navieyes/internal/media"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	speakCalls atomic.Int32
	stopCalls  atomic.Int32
	started    chan string
	block      bool
	err        error

	mu     sync.Mutex
	stopCh chan struct{}
	voice  Voice
}

func newFakeSynth(block bool) *fakeSynth {
	return &fakeSynth{block: block, started: make(chan string, 8), stopCh: make(chan struct{})}
}

func (f *fakeSynth) Speak(ctx context.Context, text string, voice Voice) error {
	f.speakCalls.Add(1)
	f.mu.Lock()
	f.voice = voice
	stopCh := f.stopCh
	f.mu.Unlock()
	f.started <- text
	if !f.block {
		return f.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return errors.New("killed")
	}
}

func (f *fakeSynth) Stop() {
	f.stopCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.stopCh)
	f.stopCh = make(chan struct{})
}

type fakeHandle struct {
	playCalls    atomic.Int32
	stopCalls    atomic.Int32
	releaseCalls atomic.Int32
	playErr      error
	done         chan error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan error, 1)}
}

func (h *fakeHandle) Play() error {
	h.playCalls.Add(1)
	return h.playErr
}

func (h *fakeHandle) Stop() {
	h.stopCalls.Add(1)
	select {
	case h.done <- nil:
	default:
	}
}

func (h *fakeHandle) Release()           { h.releaseCalls.Add(1) }
func (h *fakeHandle) Done() <-chan error { return h.done }

type fakePlayer struct {
	openCalls atomic.Int32
	handle    *fakeHandle
	err       error
}

func (p *fakePlayer) Open(context.Context, string) (Handle, error) {
	p.openCalls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.handle, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestStopAllOnIdleSlotIsNoop(t *testing.T) {
	synth := newFakeSynth(false)
	slot := NewSlot(synth, &fakePlayer{}, Voice{}, nil)

	slot.StopAll()
	slot.StopAll()
	require.Zero(t, synth.stopCalls.Load())
	require.False(t, slot.Active())
}

func TestSpeakUsesConfiguredVoice(t *testing.T) {
	synth := newFakeSynth(false)
	voice := Voice{Name: "en-gb", Pitch: 0.8, Rate: 1.1}
	slot := NewSlot(synth, &fakePlayer{}, voice, nil)

	require.NoError(t, slot.Speak(context.Background(), "a red door"))
	require.Equal(t, "a red door", <-synth.started)
	require.Equal(t, voice, synth.voice)
	require.False(t, slot.Active())
}

func TestSpeakSkipsBlankText(t *testing.T) {
	synth := newFakeSynth(false)
	slot := NewSlot(synth, &fakePlayer{}, Voice{}, nil)

	require.NoError(t, slot.Speak(context.Background(), "   "))
	require.Zero(t, synth.speakCalls.Load())
}

func TestSpeakPropagatesSynthFailure(t *testing.T) {
	synth := newFakeSynth(false)
	synth.err = errors.New("espeak-ng missing")
	slot := NewSlot(synth, &fakePlayer{}, Voice{}, nil)

	require.EqualError(t, slot.Speak(context.Background(), "hello"), "espeak-ng missing")
}

func TestStopAllInterruptsSpeechOnce(t *testing.T) {
	synth := newFakeSynth(true)
	slot := NewSlot(synth, &fakePlayer{}, Voice{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- slot.Speak(context.Background(), "long description") }()
	<-synth.started
	waitFor(t, slot.Active)

	slot.StopAll()
	require.NoError(t, <-errCh)
	require.False(t, slot.Active())
	require.Equal(t, int32(1), synth.stopCalls.Load())

	slot.StopAll()
	require.Equal(t, int32(1), synth.stopCalls.Load())
}

func TestSpeakCancelledContextReturnsContextError(t *testing.T) {
	synth := newFakeSynth(true)
	slot := NewSlot(synth, &fakePlayer{}, Voice{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- slot.Speak(ctx, "hello") }()
	<-synth.started

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.False(t, slot.Active())
}

func TestPlayFileReleasesExactlyOnceAfterCompletion(t *testing.T) {
	handle := newFakeHandle()
	player := &fakePlayer{handle: handle}
	slot := NewSlot(newFakeSynth(false), player, Voice{}, nil)

	handle.done <- nil
	require.NoError(t, slot.PlayFile(context.Background(), "/tmp/tts.wav"))
	require.Equal(t, int32(1), handle.playCalls.Load())
	require.Equal(t, int32(1), handle.releaseCalls.Load())
	require.False(t, slot.Active())

	slot.StopAll()
	require.Equal(t, int32(1), handle.releaseCalls.Load())
	require.Zero(t, handle.stopCalls.Load())
}

func TestPlayFileStopAllReleasesHandle(t *testing.T) {
	handle := newFakeHandle()
	slot := NewSlot(newFakeSynth(false), &fakePlayer{handle: handle}, Voice{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- slot.PlayFile(context.Background(), "/tmp/tts.wav") }()
	waitFor(t, func() bool { return handle.playCalls.Load() == 1 })

	slot.StopAll()
	require.NoError(t, <-errCh)
	require.Equal(t, int32(1), handle.stopCalls.Load())
	require.Equal(t, int32(1), handle.releaseCalls.Load())
	require.False(t, slot.Active())
}

func TestSpeakStopsActivePlayback(t *testing.T) {
	handle := newFakeHandle()
	synth := newFakeSynth(false)
	slot := NewSlot(synth, &fakePlayer{handle: handle}, Voice{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- slot.PlayFile(context.Background(), "/tmp/tts.wav") }()
	waitFor(t, func() bool { return handle.playCalls.Load() == 1 })

	require.NoError(t, slot.Speak(context.Background(), "new answer"))
	require.NoError(t, <-errCh)
	require.Equal(t, int32(1), handle.releaseCalls.Load())
}

func TestPlayFileFailuresWrapPlaybackError(t *testing.T) {
	slot := NewSlot(nil, &fakePlayer{err: errors.New("unsupported codec")}, Voice{}, nil)
	err := slot.PlayFile(context.Background(), "/tmp/tts.ogg")
	require.ErrorIs(t, err, media.ErrPlayback)
	require.False(t, slot.Active())

	failing := newFakeHandle()
	failing.playErr = errors.New("device busy")
	slot = NewSlot(nil, &fakePlayer{handle: failing}, Voice{}, nil)
	err = slot.PlayFile(context.Background(), "/tmp/tts.wav")
	require.ErrorIs(t, err, media.ErrPlayback)
	require.Equal(t, int32(1), failing.releaseCalls.Load())
	require.False(t, slot.Active())

	broken := newFakeHandle()
	broken.done <- errors.New("stream underflow")
	slot = NewSlot(nil, &fakePlayer{handle: broken}, Voice{}, nil)
	err = slot.PlayFile(context.Background(), "/tmp/tts.wav")
	require.ErrorIs(t, err, media.ErrPlayback)
	require.Equal(t, int32(1), broken.releaseCalls.Load())
}

func TestPlayFileContextCancelStopsAndReleases(t *testing.T) {
	handle := newFakeHandle()
	slot := NewSlot(nil, &fakePlayer{handle: handle}, Voice{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- slot.PlayFile(ctx, "/tmp/tts.wav") }()
	waitFor(t, func() bool { return handle.playCalls.Load() == 1 })

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, int32(1), handle.stopCalls.Load())
	require.Equal(t, int32(1), handle.releaseCalls.Load())
	require.False(t, slot.Active())
}

func TestPlayFileWithCancelledContextOpensNothing(t *testing.T) {
	player := &fakePlayer{handle: newFakeHandle()}
	slot := NewSlot(nil, player, Voice{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, slot.PlayFile(ctx, "/tmp/tts.wav"), context.Canceled)
	require.Zero(t, player.openCalls.Load())
}

func TestCancelledCallerLeavesActiveSpeechRunning(t *testing.T) {
	synth := newFakeSynth(true)
	player := &fakePlayer{handle: newFakeHandle()}
	slot := NewSlot(synth, player, Voice{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- slot.Speak(context.Background(), "recording") }()
	require.Equal(t, "recording", <-synth.started)

	stale, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, slot.PlayFile(stale, "/tmp/tts.wav"), context.Canceled)
	require.ErrorIs(t, slot.Speak(stale, "stale answer"), context.Canceled)

	require.Zero(t, synth.stopCalls.Load())
	require.Zero(t, player.openCalls.Load())
	require.True(t, slot.Active())

	slot.StopAll()
	require.NoError(t, <-errCh)
	require.Equal(t, int32(1), synth.stopCalls.Load())
}
