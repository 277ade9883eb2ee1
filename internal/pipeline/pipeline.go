// Package pipeline builds the concrete capture, transfer, and dispatch stages from config.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/navieyes/internal/audio"
	"github.com/rbright/navieyes/internal/capture"
	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/dispatch"
	"github.com/rbright/navieyes/internal/logging"
	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/output"
	"github.com/rbright/navieyes/internal/permission"
	"github.com/rbright/navieyes/internal/session"
	"github.com/rbright/navieyes/internal/speech"
	"github.com/rbright/navieyes/internal/transfer"
)

// Pipeline owns one set of stages and the directory their files live in.
type Pipeline struct {
	cfg    config.Config
	logger *slog.Logger

	Dir         string
	Capture     *capture.Stage
	Upload      session.Uploader
	Dispatch    *dispatch.Dispatcher
	Output      *output.Slot
	Permissions map[media.Kind]permission.Checker

	removeDir bool
}

// New wires every stage. Samples and downloaded audio go to a private temp
// dir, or to the state dir when debug.keep_samples is set.
func New(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	dir, removeDir, err := workDir(cfg.Debug.KeepSamples)
	if err != nil {
		return nil, err
	}

	synth, err := speech.NewExecSynthesizer(cfg.Speech.Command, logger)
	if err != nil {
		cleanup(dir, removeDir)
		return nil, err
	}

	slot := output.NewSlot(synth, handlePlayer{files: audio.FilePlayer{
		Pulse:   audio.PulsePlayer{},
		Command: audio.CommandPlayer{Argv: cfg.Playback.Command.Argv},
		Logger:  logger,
	}}, output.Voice{
		Name:  cfg.Speech.Voice,
		Pitch: cfg.Speech.Pitch,
		Rate:  cfg.Speech.Rate,
	}, logger)

	client := transfer.New(time.Duration(cfg.Endpoint.TimeoutMS)*time.Millisecond, cfg.Endpoint.MaxResponseBytes, logger)
	var uploader session.Uploader = client
	if cfg.Debug.ResponseDump {
		uploader = &dumpingUploader{next: client, logger: logger}
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		Dir:    dir,
		Capture: &capture.Stage{
			Dir:     dir,
			Camera:  cfg.Camera,
			MaxClip: time.Duration(cfg.Audio.MaxClipMS) * time.Millisecond,
			Record:  recordFunc(cfg.Audio, logger),
			Logger:  logger,
		},
		Upload: uploader,
		Dispatch: &dispatch.Dispatcher{
			Output:         slot,
			Fetcher:        client,
			Dir:            dir,
			TextFields:     cfg.Response.TextFields,
			AudioURLFields: cfg.Response.AudioURLFields,
			FollowAudioURL: cfg.Response.FollowAudioURL,
			MaxChars:       cfg.Response.MaxChars,
			UnknownPrompt:  cfg.Prompts.UnknownResponse,
			PlaybackPrompt: cfg.Prompts.PlaybackError,
			KeepAudio:      cfg.Debug.KeepSamples,
			Logger:         logger,
		},
		Output:      slot,
		Permissions: Permissions(cfg),
		removeDir:   removeDir,
	}
	return p, nil
}

// Deps adapts the pipeline to a session controller.
func (p *Pipeline) Deps(indicator session.Indicator) session.Deps {
	return session.Deps{
		Capture:     p.Capture,
		Upload:      p.Upload,
		Dispatch:    p.Dispatch,
		Output:      p.Output,
		Permissions: p.Permissions,
		Indicator:   indicator,
		Endpoint:    p.cfg.Endpoint,
		Prompts:     p.cfg.Prompts,
		KeepSamples: p.cfg.Debug.KeepSamples,
		Logger:      p.logger,
	}
}

// Close stops output and removes the private work dir.
func (p *Pipeline) Close() error {
	p.Output.StopAll()
	if !p.removeDir {
		return nil
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		return fmt.Errorf("remove work dir: %w", err)
	}
	return nil
}

// Permissions builds the per-kind device checks. A camera command that names
// no device is always granted.
func Permissions(cfg config.Config) map[media.Kind]permission.Checker {
	checkers := map[media.Kind]permission.Checker{
		media.AudioClip: permission.NewProbe(microphoneCheck(cfg.Audio)),
	}
	if cfg.Camera.Device != "" && config.HasPlaceholder(cfg.Camera.Command.Argv, "device") {
		checkers[media.Photo] = permission.NewProbe(permission.DeviceAccess(cfg.Camera.Device))
	}
	return checkers
}

// microphoneCheck grants access when a usable, unmuted source can be selected.
func microphoneCheck(cfg config.AudioConfig) permission.CheckFunc {
	return func(ctx context.Context) error {
		_, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
		return err
	}
}

func recordFunc(cfg config.AudioConfig, logger *slog.Logger) capture.RecordFunc {
	return func(ctx context.Context, maxDuration time.Duration) (capture.Recorder, error) {
		selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" && logger != nil {
			logger.Warn(selection.Warning)
		}
		rec, err := audio.StartRecording(ctx, selection.Device, maxDuration)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Debug("recording started", "device", describeDevice(selection.Device), "max_ms", maxDuration.Milliseconds())
		}
		return rec, nil
	}
}

// handlePlayer adapts audio playbacks to the output slot's Handle.
type handlePlayer struct {
	files audio.FilePlayer
}

func (p handlePlayer) Open(ctx context.Context, path string) (output.Handle, error) {
	playback, err := p.files.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return playback, nil
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	if device.Description == "" {
		return device.ID
	}
	if device.ID == "" {
		return device.Description
	}
	return fmt.Sprintf("%s (%s)", device.Description, device.ID)
}

func workDir(keep bool) (string, bool, error) {
	if keep {
		dir, err := debugDir("samples")
		return dir, false, err
	}
	dir, err := os.MkdirTemp("", "navieyes-")
	if err != nil {
		return "", false, fmt.Errorf("create work dir: %w", err)
	}
	return dir, true, nil
}

func cleanup(dir string, remove bool) {
	if remove {
		_ = os.RemoveAll(dir)
	}
}

// debugDir returns (and creates) a subdirectory of the navieyes state dir.
func debugDir(name string) (string, error) {
	path, err := logging.StatePath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("create %s dir: %w", filepath.Base(path), err)
	}
	return path, nil
}
