package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
)

// Playback is one audio file bound to the output device. Done delivers
// exactly one value once playback finishes or is stopped.
type Playback interface {
	Play() error
	Stop()
	Release()
	Done() <-chan error
}

// completion delivers a single terminal event for a playback.
type completion struct {
	once sync.Once
	done chan error
}

func newCompletion() completion {
	return completion{done: make(chan error, 1)}
}

func (c *completion) finish(err error) {
	c.once.Do(func() {
		c.done <- err
		close(c.done)
	})
}

// PulsePlayer plays WAV files through a Pulse playback stream.
type PulsePlayer struct{}

// Open decodes path and prepares a paused playback stream.
func (PulsePlayer) Open(_ context.Context, path string) (Playback, error) {
	pcm, err := ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	if len(pcm.Samples) == 0 {
		return nil, fmt.Errorf("wav %q has no samples", path)
	}

	var layout pulse.PlaybackOption
	switch pcm.Channels {
	case 1:
		layout = pulse.PlaybackMono
	case 2:
		layout = pulse.PlaybackStereo
	default:
		return nil, fmt.Errorf("unsupported channel count %d", pcm.Channels)
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return nil, err
	}

	stream, err := client.NewPlayback(
		sampleReader(pcm.Samples),
		layout,
		pulse.PlaybackSampleRate(pcm.SampleRate),
		pulse.PlaybackMediaName("navieyes response"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}

	return &streamPlayback{
		client:     client,
		stream:     stream,
		completion: newCompletion(),
	}, nil
}

type streamPlayback struct {
	client *pulse.Client
	stream *pulse.PlaybackStream

	completion
	mu       sync.Mutex
	started  bool
	released bool
}

func (p *streamPlayback) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errors.New("playback already released")
	}
	if p.started {
		return nil
	}
	p.started = true

	p.stream.Start()
	go func() {
		p.stream.Drain()
		p.finish(p.stream.Error())
	}()
	return nil
}

func (p *streamPlayback) Stop() {
	p.mu.Lock()
	released := p.released
	p.mu.Unlock()
	if !released {
		p.stream.Stop()
	}
	p.finish(nil)
}

func (p *streamPlayback) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()

	p.finish(nil)
	p.stream.Close()
	p.client.Close()
}

func (p *streamPlayback) Done() <-chan error {
	return p.done
}

// CommandPlayer plays files through an external command such as pw-play.
// Argv may reference `{file}`; otherwise the path is appended.
type CommandPlayer struct {
	Argv []string
}

// Open validates the command; the process starts on Play.
func (p CommandPlayer) Open(_ context.Context, path string) (Playback, error) {
	if len(p.Argv) == 0 {
		return nil, errors.New("playback command is empty")
	}
	argv := make([]string, 0, len(p.Argv)+1)
	substituted := false
	for _, arg := range p.Argv {
		if strings.Contains(arg, "{file}") {
			substituted = true
			arg = strings.ReplaceAll(arg, "{file}", path)
		}
		argv = append(argv, arg)
	}
	if !substituted {
		argv = append(argv, path)
	}
	return &commandPlayback{argv: argv, completion: newCompletion()}, nil
}

type commandPlayback struct {
	argv []string

	completion
	mu       sync.Mutex
	cmd      *exec.Cmd
	released bool
}

func (p *commandPlayback) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errors.New("playback already released")
	}
	if p.cmd != nil {
		return nil
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.argv[0], err)
	}
	p.cmd = cmd

	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("%s: %w", p.argv[0], err)
		}
		p.finish(err)
	}()
	return nil
}

func (p *commandPlayback) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	p.finish(nil)
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (p *commandPlayback) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()
	p.Stop()
}

func (p *commandPlayback) Done() <-chan error {
	return p.done
}

// FilePlayer routes WAV files to Pulse and everything else to the command
// player. A WAV that Pulse cannot open falls back to the command.
type FilePlayer struct {
	Pulse   Opener
	Command CommandPlayer
	Logger  *slog.Logger
}

// Opener prepares a playback for one file.
type Opener interface {
	Open(context.Context, string) (Playback, error)
}

// Open returns a paused playback for path.
func (f FilePlayer) Open(ctx context.Context, path string) (Playback, error) {
	if f.Pulse != nil && strings.EqualFold(filepath.Ext(path), ".wav") {
		playback, err := f.Pulse.Open(ctx, path)
		if err == nil {
			return playback, nil
		}
		if f.Logger != nil {
			f.Logger.Warn("pulse playback unavailable; using playback command", "path", path, "error", err.Error())
		}
	}
	return f.Command.Open(ctx, path)
}

// PlayPCM plays mono samples to completion. Used for short synthesized cues.
func PlayPCM(samples []int16, sampleRate int, mediaName string) error {
	if len(samples) == 0 {
		return nil
	}
	client, err := newClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		sampleReader(samples),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play pcm stream: %w", err)
	}
	return nil
}

// sampleReader feeds samples to Pulse and reports EndOfData when exhausted.
func sampleReader(samples []int16) pulse.Reader {
	cursor := 0
	return pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})
}
