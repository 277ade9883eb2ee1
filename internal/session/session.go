// Package session coordinates pipeline runs, their status, and IPC control.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/dispatch"
	"github.com/rbright/navieyes/internal/fsm"
	"github.com/rbright/navieyes/internal/ipc"
	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/permission"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rbright/navieyes/internal/session"

// ErrClosed is returned when a run is requested after Close.
var ErrClosed = errors.New("session closed")

// Result is the complete output of the latest pipeline run returned by Run.
type Result struct {
	RunID         string
	Kind          media.Kind
	State         fsm.State
	Route         dispatch.Route
	Text          string
	Failure       media.Failure
	Cancelled     bool
	Superseded    bool
	Err           error
	BytesUploaded int64
	CaptureTime   time.Duration
	UploadLatency time.Duration
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Capturer produces one sample per run.
type Capturer interface {
	Capture(ctx context.Context, kind media.Kind, state permission.State, finish <-chan struct{}) (media.Sample, error)
}

// Uploader sends a sample and returns the complete response.
type Uploader interface {
	Upload(ctx context.Context, req media.UploadRequest) (media.Response, error)
}

// Dispatcher makes a response audible.
type Dispatcher interface {
	Dispatch(ctx context.Context, resp media.Response) dispatch.Outcome
}

// Output is the shared audio slot used for prompts and teardown.
type Output interface {
	StopAll()
	Speak(ctx context.Context, text string) error
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowCapturing(context.Context, media.Kind)
	ShowProcessing(context.Context)
	ShowDone(context.Context)
	ShowError(context.Context, string)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowCapturing(context.Context, media.Kind) {}
func (noopIndicator) ShowProcessing(context.Context)            {}
func (noopIndicator) ShowDone(context.Context)                  {}
func (noopIndicator) ShowError(context.Context, string)         {}
func (noopIndicator) Hide(context.Context)                      {}

// Deps are the stages and collaborators a Controller drives.
type Deps struct {
	Capture     Capturer
	Upload      Uploader
	Dispatch    Dispatcher
	Output      Output
	Permissions map[media.Kind]permission.Checker
	Indicator   Indicator

	Endpoint    config.EndpointConfig
	Prompts     config.PromptsConfig
	KeepSamples bool

	Logger *slog.Logger
}

// run is one PipelineRun. Its ctx is the cancellation token every stage observes.
type run struct {
	id     string
	kind   media.Kind
	ctx    context.Context
	cancel context.CancelFunc

	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}

	result Result
}

func (r *run) finishCapture() {
	r.finishOnce.Do(func() { close(r.finish) })
}

// Controller owns the status FSM and at most one active run.
type Controller struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	state   fsm.State
	parent  context.Context
	current *run
	last    *Result
	closed  bool
}

// NewController constructs a controller. Capture, Upload, Dispatch, and
// Output are required.
func NewController(deps Deps) *Controller {
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		state:  fsm.StateIdle,
		parent: context.Background(),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run starts a run of kind and returns when the latest run finishes. Runs
// started through Handle while waiting supersede the earlier one. Cancelling
// ctx cancels the active run.
func (c *Controller) Run(ctx context.Context, kind media.Kind) Result {
	c.mu.Lock()
	c.parent = ctx
	c.mu.Unlock()

	r, err := c.start(kind)
	if err != nil {
		now := time.Now()
		return Result{Kind: kind, State: c.State(), Err: err, StartedAt: now, FinishedAt: now}
	}

	for {
		select {
		case <-r.done:
		case <-ctx.Done():
			r.cancel()
			<-r.done
		}

		c.mu.Lock()
		latest := c.current
		c.mu.Unlock()
		if latest == nil || latest == r || ctx.Err() != nil {
			return r.result
		}
		r = latest
	}
}

// Close cancels the active run, waits for it, and stops all audio output.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	active := c.current
	c.mu.Unlock()

	if active != nil {
		active.cancel()
		<-active.done
	}
	c.deps.Output.StopAll()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.deps.Indicator.Hide(cleanupCtx)
}

// Handle serves IPC commands for the owner process.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.status("status")
	case ipc.CommandPhoto:
		return c.requestCapture(media.Photo)
	case ipc.CommandVoice:
		if c.finishRecording() {
			return c.status("recording stopped")
		}
		return c.requestCapture(media.AudioClip)
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandReset:
		return c.requestReset()
	default:
		resp := c.status("")
		resp.OK = false
		resp.Error = fmt.Sprintf("unknown command: %s", req.Command)
		return resp
	}
}

func (c *Controller) status(message string) ipc.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp := ipc.Response{OK: true, State: string(c.state), Message: message}
	if c.current != nil {
		resp.Run = c.current.id
	}
	if c.last != nil && c.state == fsm.StateError {
		resp.Failure = string(c.last.Failure)
	}
	return resp
}

func (c *Controller) requestCapture(kind media.Kind) ipc.Response {
	if _, err := c.start(kind); err != nil {
		resp := c.status("")
		resp.OK = false
		resp.Error = err.Error()
		return resp
	}
	if kind == media.AudioClip {
		return c.status("recording started")
	}
	return c.status("photo capture started")
}

// finishRecording ends an active voice capture and reports whether one existed.
func (c *Controller) finishRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.kind != media.AudioClip || c.state != fsm.StateCapturing {
		return false
	}
	c.current.finishCapture()
	return true
}

func (c *Controller) requestStop() ipc.Response {
	c.mu.Lock()
	active := c.current
	wasActive := fsm.Active(c.state)
	if wasActive {
		c.apply(fsm.EventCancel)
	}
	c.mu.Unlock()

	if wasActive && active != nil {
		active.cancel()
	}
	c.deps.Output.StopAll()
	if wasActive {
		return c.status("run stopped")
	}
	return c.status("output stopped")
}

func (c *Controller) requestReset() ipc.Response {
	c.mu.Lock()
	active := c.current
	c.apply(fsm.EventReset)
	c.last = nil
	c.mu.Unlock()

	if active != nil {
		active.cancel()
	}
	c.deps.Output.StopAll()
	c.deps.Indicator.Hide(context.Background())
	return c.status("reset")
}

// start supersedes any active run with a new one of kind.
func (c *Controller) start(kind media.Kind) (*run, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(c.parent)
	r := &run{
		id:     uuid.NewString(),
		kind:   kind,
		ctx:    ctx,
		cancel: cancel,
		finish: make(chan struct{}),
		done:   make(chan struct{}),
	}
	previous := c.current
	c.current = r
	c.apply(fsm.EventCapture)
	c.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}
	c.deps.Output.StopAll()

	go c.execute(r)
	return r, nil
}

// apply advances the FSM. Callers hold c.mu.
func (c *Controller) apply(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Debug("ignored transition", "state", string(c.state), "event", string(event), "error", err.Error())
		return
	}
	c.state = next
}

// advance applies event only while r is still the current run.
func (c *Controller) advance(r *run, event fsm.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != r {
		return false
	}
	c.apply(event)
	return true
}

func (c *Controller) isCurrent(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == r
}

func (c *Controller) execute(r *run) {
	defer close(r.done)
	defer r.cancel()

	ctx, span := c.tracer.Start(r.ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("run.kind", string(r.kind)),
	))
	defer span.End()

	r.result = Result{RunID: r.id, Kind: r.kind, StartedAt: time.Now()}
	c.pipeline(ctx, r)
	r.result.FinishedAt = time.Now()

	c.mu.Lock()
	if c.current == r {
		r.result.State = c.state
		last := r.result
		c.last = &last
	} else {
		r.result.State = c.state
		r.result.Superseded = true
	}
	c.mu.Unlock()

	if r.result.Err != nil && !r.result.Cancelled {
		span.RecordError(r.result.Err)
		span.SetStatus(codes.Error, string(r.result.Failure))
	}
	c.logResult(r.result)
}

func (c *Controller) pipeline(ctx context.Context, r *run) {
	c.deps.Indicator.ShowCapturing(ctx, r.kind)
	if r.kind == media.AudioClip {
		c.prompt(ctx, r, c.deps.Prompts.Recording)
	}

	state := permission.Resolve(ctx, c.deps.Permissions[r.kind])

	captureCtx, captureSpan := c.tracer.Start(ctx, "pipeline.capture")
	captureStarted := time.Now()
	sample, err := c.deps.Capture.Capture(captureCtx, r.kind, state, r.finish)
	r.result.CaptureTime = time.Since(captureStarted)
	endSpan(captureSpan, err)
	if err != nil {
		c.fail(ctx, r, err)
		return
	}
	if !c.deps.KeepSamples {
		defer os.Remove(sample.URI)
	}
	if info, statErr := os.Stat(sample.URI); statErr == nil {
		r.result.BytesUploaded = info.Size()
	}

	if !c.advance(r, fsm.EventCaptured) {
		r.result.Cancelled = true
		r.result.Err = context.Canceled
		return
	}
	c.deps.Indicator.ShowProcessing(ctx)
	if r.kind == media.AudioClip {
		c.prompt(ctx, r, c.deps.Prompts.Processing)
	}

	uploadCtx, uploadSpan := c.tracer.Start(ctx, "pipeline.upload", trace.WithAttributes(
		attribute.String("sample.mime", sample.MIMEType),
		attribute.Int64("sample.bytes", r.result.BytesUploaded),
	))
	uploadStarted := time.Now()
	resp, err := c.deps.Upload.Upload(uploadCtx, media.UploadRequest{
		Sample:    sample,
		Endpoint:  c.endpointFor(r.kind),
		FieldName: c.deps.Endpoint.FieldName,
		Fields:    c.deps.Endpoint.Fields,
	})
	r.result.UploadLatency = time.Since(uploadStarted)
	endSpan(uploadSpan, err)
	if err != nil {
		c.fail(ctx, r, err)
		return
	}

	if ctx.Err() != nil || !c.isCurrent(r) {
		c.cancelled(r, ctx.Err())
		return
	}

	dispatchCtx, dispatchSpan := c.tracer.Start(ctx, "pipeline.dispatch", trace.WithAttributes(
		attribute.String("response.type", string(resp.Type)),
	))
	outcome := c.deps.Dispatch.Dispatch(dispatchCtx, resp)
	dispatchSpan.SetAttributes(attribute.String("dispatch.route", string(outcome.Route)))
	endSpan(dispatchSpan, outcome.Err)

	r.result.Route = outcome.Route
	r.result.Text = outcome.Text
	if outcome.Route == dispatch.RouteSkipped || ctx.Err() != nil {
		c.cancelled(r, ctx.Err())
		return
	}
	if outcome.Err != nil {
		// Dispatch already spoke the fallback prompt.
		r.result.Err = outcome.Err
		r.result.Failure = media.FailureOf(outcome.Err)
		if c.advance(r, fsm.EventFail) {
			c.deps.Indicator.ShowError(ctx, c.promptFor(r.kind, r.result.Failure))
		}
		return
	}

	if c.advance(r, fsm.EventDispatched) {
		c.deps.Indicator.ShowDone(ctx)
	}
}

// fail records err, moves to error, and speaks its prompt. Errors caused by
// cancellation are silent.
func (c *Controller) fail(ctx context.Context, r *run, err error) {
	if ctx.Err() != nil || !c.isCurrent(r) {
		c.cancelled(r, err)
		return
	}

	r.result.Err = err
	r.result.Failure = media.FailureOf(err)
	if !c.advance(r, fsm.EventFail) {
		return
	}

	message := c.promptFor(r.kind, r.result.Failure)
	c.deps.Indicator.ShowError(ctx, message)
	c.prompt(ctx, r, message)
}

func (c *Controller) cancelled(r *run, err error) {
	r.result.Cancelled = true
	if err == nil {
		err = context.Canceled
	}
	r.result.Err = err
	c.advance(r, fsm.EventCancel)
}

// prompt speaks text for r unless it is empty or r is no longer current.
func (c *Controller) prompt(ctx context.Context, r *run, text string) {
	if text == "" || ctx.Err() != nil || !c.isCurrent(r) {
		return
	}
	if err := c.deps.Output.Speak(ctx, text); err != nil && ctx.Err() == nil {
		c.logger.Warn("prompt failed", "run_id", r.id, "error", err.Error())
	}
}

func (c *Controller) promptFor(kind media.Kind, failure media.Failure) string {
	prompts := c.deps.Prompts
	switch failure {
	case media.FailurePermissionDenied:
		if kind == media.Photo {
			return prompts.CameraPermissionDenied
		}
		return prompts.PermissionDenied
	case media.FailureEmptyCapture:
		return prompts.EmptyCapture
	case media.FailureNetwork:
		return prompts.NetworkError
	case media.FailureResponseParse:
		return prompts.UnknownResponse
	case media.FailurePlayback:
		return prompts.PlaybackError
	default:
		return prompts.CaptureError
	}
}

func (c *Controller) endpointFor(kind media.Kind) string {
	if kind == media.AudioClip {
		return c.deps.Endpoint.Voice
	}
	return c.deps.Endpoint.Photo
}

func (c *Controller) logResult(result Result) {
	attrs := []any{
		"run_id", result.RunID,
		"kind", string(result.Kind),
		"state", string(result.State),
		"route", string(result.Route),
		"bytes_uploaded", result.BytesUploaded,
		"capture_ms", result.CaptureTime.Milliseconds(),
		"upload_ms", result.UploadLatency.Milliseconds(),
		"total_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	switch {
	case result.Cancelled:
		c.logger.Info("run cancelled", append(attrs, "superseded", result.Superseded)...)
	case result.Err != nil:
		c.logger.Error("run failed", append(attrs, "failure", string(result.Failure), "error", result.Err.Error())...)
	default:
		c.logger.Info("run complete", attrs...)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
