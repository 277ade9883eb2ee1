// Package capture obtains one photo or audio clip per pipeline run.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/navieyes/internal/audio"
	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/permission"
)

const cameraTimeout = 15 * time.Second

// Recorder is an in-progress microphone recording.
type Recorder interface {
	Stop() error
	PCM() []byte
	Full() <-chan struct{}
}

// RecordFunc starts a recording capped at maxDuration.
type RecordFunc func(ctx context.Context, maxDuration time.Duration) (Recorder, error)

// CommandRunner executes a camera command.
type CommandRunner func(ctx context.Context, argv []string) error

// Stage captures samples into Dir.
type Stage struct {
	Dir     string
	Camera  config.CameraConfig
	MaxClip time.Duration
	Record  RecordFunc
	Run     CommandRunner
	Logger  *slog.Logger
}

// Capture produces one sample of kind. Photos are taken immediately; clips
// record until finish is closed, ctx ends, or MaxClip elapses. Nothing is
// written unless permission is Granted.
func (s *Stage) Capture(ctx context.Context, kind media.Kind, state permission.State, finish <-chan struct{}) (media.Sample, error) {
	if state != permission.Granted {
		return media.Sample{}, fmt.Errorf("%w: %s access %s", media.ErrPermissionDenied, deviceName(kind), state)
	}
	if err := ctx.Err(); err != nil {
		return media.Sample{}, err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return media.Sample{}, fmt.Errorf("%w: prepare capture dir: %v", media.ErrCapture, err)
	}

	switch kind {
	case media.Photo:
		return s.capturePhoto(ctx)
	case media.AudioClip:
		return s.captureClip(ctx, finish)
	default:
		return media.Sample{}, fmt.Errorf("%w: unknown capture kind %q", media.ErrCapture, kind)
	}
}

func (s *Stage) capturePhoto(ctx context.Context) (media.Sample, error) {
	path := filepath.Join(s.Dir, "photo-"+uuid.NewString()+".jpg")
	argv := config.ExpandArgv(s.Camera.Command.Argv, map[string]string{
		"device": s.Camera.Device,
		"output": path,
	})
	if len(argv) == 0 {
		return media.Sample{}, fmt.Errorf("%w: camera command is empty", media.ErrCapture)
	}

	run := s.Run
	if run == nil {
		run = runCommand
	}

	runCtx, cancel := context.WithTimeout(ctx, cameraTimeout)
	defer cancel()
	if err := run(runCtx, argv); err != nil {
		_ = os.Remove(path)
		if ctx.Err() != nil {
			return media.Sample{}, ctx.Err()
		}
		return media.Sample{}, fmt.Errorf("%w: %v", media.ErrCapture, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return media.Sample{}, fmt.Errorf("%w: camera wrote no file", media.ErrEmptyCapture)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return media.Sample{}, fmt.Errorf("%w: camera wrote an empty file", media.ErrEmptyCapture)
	}

	s.debug("photo captured", "path", path, "bytes", info.Size())
	return media.Sample{Kind: media.Photo, URI: path, MIMEType: media.InferMIME(path, media.Photo)}, nil
}

func (s *Stage) captureClip(ctx context.Context, finish <-chan struct{}) (media.Sample, error) {
	if s.Record == nil {
		return media.Sample{}, fmt.Errorf("%w: microphone not configured", media.ErrCapture)
	}

	rec, err := s.Record(ctx, s.MaxClip)
	if err != nil {
		return media.Sample{}, fmt.Errorf("%w: %v", media.ErrCapture, err)
	}

	select {
	case <-finish:
	case <-rec.Full():
		s.debug("clip reached max length", "max_ms", s.MaxClip.Milliseconds())
	case <-ctx.Done():
	}
	_ = rec.Stop()
	if err := ctx.Err(); err != nil {
		return media.Sample{}, err
	}

	pcm := rec.PCM()
	if len(pcm) == 0 {
		return media.Sample{}, fmt.Errorf("%w: no audio recorded", media.ErrEmptyCapture)
	}

	path := filepath.Join(s.Dir, "clip-"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(path, pcm, audio.SampleRate, audio.Channels); err != nil {
		return media.Sample{}, fmt.Errorf("%w: %v", media.ErrCapture, err)
	}

	s.debug("clip captured", "path", path, "bytes", len(pcm))
	return media.Sample{Kind: media.AudioClip, URI: path, MIMEType: media.InferMIME(path, media.AudioClip)}, nil
}

// runCommand executes argv, folding stderr into the error.
func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func deviceName(kind media.Kind) string {
	if kind == media.AudioClip {
		return "microphone"
	}
	return "camera"
}

func (s *Stage) debug(msg string, args ...any) {
	if s.Logger == nil {
		return
	}
	s.Logger.Debug(msg, append([]any{"component", "capture"}, args...)...)
}

