// Package dispatch routes a server response to speech or audio playback.
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/utterance"
)

// Route names the path a response took through Dispatch.
type Route string

const (
	RouteSpeech   Route = "speech"
	RoutePlayback Route = "playback"
	RouteFallback Route = "fallback"
	RouteSkipped  Route = "skipped"
)

// Outcome records what Dispatch did with one response. Err carries parse or
// playback failures that were degraded to a spoken fallback.
type Outcome struct {
	Route     Route
	Text      string
	AudioPath string
	Err       error
}

// Output is the shared audio slot.
type Output interface {
	StopAll()
	Speak(ctx context.Context, text string) error
	PlayFile(ctx context.Context, path string) error
}

// Fetcher downloads a linked audio resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (media.Response, error)
}

// Dispatcher turns responses into exactly one audible action.
type Dispatcher struct {
	Output  Output
	Fetcher Fetcher
	Dir     string

	TextFields     []string
	AudioURLFields []string
	FollowAudioURL bool
	MaxChars       int

	UnknownPrompt  string
	PlaybackPrompt string
	KeepAudio      bool

	Logger *slog.Logger
}

// Dispatch stops current output before routing. Parse and playback failures
// never escape; they are spoken as fallback prompts and recorded in Outcome.Err.
// A cancelled ctx yields RouteSkipped and leaves output untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, resp media.Response) Outcome {
	if ctx.Err() != nil {
		return Outcome{Route: RouteSkipped, Err: ctx.Err()}
	}
	d.Output.StopAll()

	switch resp.Type {
	case media.ContentJSON:
		return d.dispatchJSON(ctx, resp)
	case media.ContentAudio:
		return d.dispatchAudio(ctx, resp)
	default:
		return d.fallback(ctx, d.UnknownPrompt,
			fmt.Errorf("%w: unsupported content type %q", media.ErrResponseParse, resp.RawContentType))
	}
}

func (d *Dispatcher) dispatchJSON(ctx context.Context, resp media.Response) Outcome {
	text, audioURL, err := extract(resp.Payload, d.TextFields, d.AudioURLFields)
	if err != nil {
		return d.fallback(ctx, d.UnknownPrompt, err)
	}

	if cleaned := utterance.Clean(text, d.MaxChars); cleaned != "" {
		return d.speak(ctx, RouteSpeech, cleaned, nil)
	}

	if audioURL != "" && d.FollowAudioURL && d.Fetcher != nil {
		target, err := resolve(resp.URL, audioURL)
		if err != nil {
			return d.fallback(ctx, d.UnknownPrompt, fmt.Errorf("%w: audio url: %v", media.ErrResponseParse, err))
		}
		fetched, err := d.Fetcher.Fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Route: RouteSkipped, Err: ctx.Err()}
			}
			return d.fallback(ctx, d.PlaybackPrompt, fmt.Errorf("%w: fetch audio: %v", media.ErrPlayback, err))
		}
		if fetched.RawContentType == "" || fetched.Type == media.ContentUnknown {
			fetched.RawContentType = media.InferMIME(target, media.AudioClip)
		}
		return d.dispatchAudio(ctx, fetched)
	}

	return d.fallback(ctx, d.UnknownPrompt, fmt.Errorf("%w: no message field in response", media.ErrResponseParse))
}

func (d *Dispatcher) dispatchAudio(ctx context.Context, resp media.Response) Outcome {
	payload := resp.Payload
	if resp.TransferEncoding == "base64" {
		decoded, err := decodeBase64(payload)
		if err != nil {
			return d.fallback(ctx, d.UnknownPrompt, fmt.Errorf("%w: base64 audio: %v", media.ErrResponseParse, err))
		}
		payload = decoded
	}
	if len(payload) == 0 {
		return d.fallback(ctx, d.UnknownPrompt, fmt.Errorf("%w: empty audio payload", media.ErrResponseParse))
	}

	path, err := d.writeAudio(payload, resp.RawContentType)
	if err != nil {
		return d.fallback(ctx, d.PlaybackPrompt, fmt.Errorf("%w: %v", media.ErrPlayback, err))
	}
	if !d.KeepAudio {
		defer os.Remove(path)
	}

	if err := d.Output.PlayFile(ctx, path); err != nil {
		if ctx.Err() != nil {
			return Outcome{Route: RouteSkipped, AudioPath: path, Err: ctx.Err()}
		}
		if !errors.Is(err, media.ErrPlayback) {
			err = fmt.Errorf("%w: %v", media.ErrPlayback, err)
		}
		out := d.fallback(ctx, d.PlaybackPrompt, err)
		out.AudioPath = path
		return out
	}
	if ctx.Err() != nil {
		return Outcome{Route: RouteSkipped, AudioPath: path, Err: ctx.Err()}
	}
	return Outcome{Route: RoutePlayback, AudioPath: path}
}

func (d *Dispatcher) fallback(ctx context.Context, prompt string, cause error) Outcome {
	if d.Logger != nil {
		d.Logger.Warn("response fallback", "error", cause.Error(), "failure", string(media.FailureOf(cause)))
	}
	return d.speak(ctx, RouteFallback, prompt, cause)
}

func (d *Dispatcher) speak(ctx context.Context, route Route, text string, cause error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Route: RouteSkipped, Err: ctx.Err()}
	}
	err := d.Output.Speak(ctx, text)
	if ctx.Err() != nil {
		return Outcome{Route: RouteSkipped, Text: text, Err: ctx.Err()}
	}
	if err != nil && d.Logger != nil {
		d.Logger.Error("speech failed", "error", err.Error())
	}
	if cause == nil {
		cause = err
	}
	return Outcome{Route: route, Text: text, Err: cause}
}

func (d *Dispatcher) writeAudio(payload []byte, contentType string) (string, error) {
	ext := media.ExtensionFor(contentType)
	if ext == ".bin" && bytes.HasPrefix(payload, []byte("RIFF")) {
		ext = ".wav"
	}
	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "tts-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	return path, nil
}

// extract returns the first non-empty text field, or failing that the first
// audio URL field. A payload with neither is not an error here.
func extract(payload []byte, textFields []string, audioFields []string) (string, string, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", "", fmt.Errorf("%w: %v", media.ErrResponseParse, err)
	}

	switch value := decoded.(type) {
	case string:
		return value, "", nil
	case map[string]any:
		for _, field := range textFields {
			if text := textOf(value[field]); strings.TrimSpace(text) != "" {
				return text, "", nil
			}
		}
		for _, field := range audioFields {
			if link, ok := value[field].(string); ok && strings.TrimSpace(link) != "" {
				return "", strings.TrimSpace(link), nil
			}
		}
		return "", "", nil
	default:
		return "", "", fmt.Errorf("%w: unexpected JSON %T", media.ErrResponseParse, decoded)
	}
}

func textOf(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case map[string]any:
		for _, member := range []string{"content", "text"} {
			if text, ok := typed[member].(string); ok {
				return text
			}
		}
	}
	return ""
}

func resolve(base string, ref string) (string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if target.IsAbs() {
		return target.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("relative url %q without base", ref)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(target).String(), nil
}

func decodeBase64(payload []byte) ([]byte, error) {
	trimmed := strings.Join(strings.Fields(string(payload)), "")
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err == nil {
		return decoded, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(trimmed); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
