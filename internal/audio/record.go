package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Recording format used for every voice query.
const (
	SampleRate     = 16000
	Channels       = 1
	bytesPerSample = 2
	fragmentBytes  = 640 // 20ms @ 16kHz mono s16
)

// LimitBytes returns the PCM byte length of d at the recording format.
func LimitBytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d.Seconds() * SampleRate)
	return frames * Channels * bytesPerSample
}

// Recorder accumulates PCM from one selected Pulse source until stopped or
// until its byte limit is reached.
type Recorder struct {
	device Device
	limit  int

	client *pulse.Client
	stream *pulse.RecordStream

	mu       sync.Mutex
	pcm      []byte
	stopped  bool
	full     chan struct{}
	fullOnce sync.Once
}

// StartRecording creates and starts a 16kHz mono s16 record stream. A
// maxDuration of zero records until Stop.
func StartRecording(ctx context.Context, selected Device, maxDuration time.Duration) (*Recorder, error) {
	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	rec := newRecorder(selected, LimitBytes(maxDuration))
	rec.client = client

	writer := pulse.NewWriter(writerFunc(rec.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("navieyes voice query"),
	)
	if err != nil {
		_ = rec.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	rec.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = rec.Stop()
		case <-rec.full:
		}
	}()

	return rec, nil
}

func newRecorder(device Device, limit int) *Recorder {
	return &Recorder{
		device: device,
		limit:  limit,
		full:   make(chan struct{}),
	}
}

// Device returns recording metadata for logging and diagnostics.
func (r *Recorder) Device() Device {
	return r.device
}

// Full is closed once the byte limit has been reached.
func (r *Recorder) Full() <-chan struct{} {
	return r.full
}

// BytesCaptured reports total PCM bytes kept so far.
func (r *Recorder) BytesCaptured() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.pcm))
}

// PCM returns a snapshot of all captured s16le bytes.
func (r *Recorder) PCM() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.pcm))
	copy(out, r.pcm)
	return out
}

// Stop halts the stream and releases the Pulse client. Safe to call repeatedly.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	if r.stream != nil {
		r.stream.Stop()
		r.stream.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

// onPCM receives raw Pulse frames; bytes past the limit are dropped.
func (r *Recorder) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return 0, io.EOF
	}

	keep := buffer
	if r.limit > 0 {
		room := r.limit - len(r.pcm)
		if room <= 0 {
			r.markFull()
			return len(buffer), nil
		}
		if len(keep) >= room {
			keep = keep[:room]
			r.markFull()
		}
	}
	r.pcm = append(r.pcm, keep...)
	return len(buffer), nil
}

func (r *Recorder) markFull() {
	r.fullOnce.Do(func() { close(r.full) })
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
