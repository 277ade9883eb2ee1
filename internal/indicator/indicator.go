// Package indicator reports pipeline status through desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/navieyes/internal/audio"
	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/media"
)

const (
	persistentTimeoutMS = 300000
	doneTimeoutMS       = 2500
	defaultErrorTimeout = 1200
)

// CuePlayer plays mono PCM at sampleRate.
type CuePlayer func(samples []int16, sampleRate int, mediaName string) error

// Notifier is the concrete indicator used by the owner process.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	playCue  CuePlayer

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
	cues           sync.WaitGroup
}

// NewNotifier creates an indicator from config. Cues play through Pulse.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: defaultMessages(),
		playCue:  audio.PlayPCM,
	}
}

// ShowCapturing signals capture start and emits the start cue.
func (n *Notifier) ShowCapturing(ctx context.Context, kind media.Kind) {
	n.cue(cueStart)
	n.show(ctx, n.messages.capturing(kind), urgencyNormal, persistentTimeoutMS)
}

// ShowProcessing signals the upload and dispatch phase.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	n.cue(cueProcessing)
	n.show(ctx, n.messages.processing, urgencyNormal, persistentTimeoutMS)
}

// ShowDone signals a dispatched answer.
func (n *Notifier) ShowDone(ctx context.Context) {
	n.cue(cueDone)
	n.show(ctx, n.messages.done, urgencyLow, doneTimeoutMS)
}

// ShowError displays an error message; empty text uses the generic one.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.cue(cueError)
	if strings.TrimSpace(text) == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorTimeout
	}
	n.show(ctx, text, urgencyCritical, timeout)
}

// Hide dismisses the active notification and waits for pending cues.
func (n *Notifier) Hide(ctx context.Context) {
	defer n.cues.Wait()
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

// show replaces the current notification with summary.
func (n *Notifier) show(ctx context.Context, summary string, level urgency, timeoutMS int) {
	if !n.cfg.Enable {
		return
	}

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "navieyes"
	}

	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		replaceID := n.notificationID
		n.mu.Unlock()

		id, err := desktopNotify(ctx, notification{
			appName:   appName,
			replaceID: replaceID,
			summary:   summary,
			urgency:   level,
			timeoutMS: timeoutMS,
		})
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.notificationID = id
		n.mu.Unlock()
		return nil
	})
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// cue serializes cue playback and emits audio asynchronously.
func (n *Notifier) cue(kind cueKind) {
	if !n.cfg.SoundEnable || n.playCue == nil {
		return
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return
	}

	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.playCue(samples, cueSampleRate, "navieyes "+kind.String()+" cue"); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
