package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	for _, ep := range []struct {
		key   string
		value string
	}{
		{key: "endpoint.photo", value: cfg.Endpoint.Photo},
		{key: "endpoint.voice", value: cfg.Endpoint.Voice},
	} {
		u, err := validateHTTPURL(ep.key, ep.value)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s uses plain http to a non-local host", ep.key)})
		}
	}
	if strings.TrimSpace(cfg.Endpoint.Health) != "" {
		if _, err := validateHTTPURL("endpoint.health", cfg.Endpoint.Health); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Endpoint.FieldName) == "" {
		return nil, fmt.Errorf("endpoint.field_name must not be empty")
	}
	if _, clash := cfg.Endpoint.Fields[cfg.Endpoint.FieldName]; clash {
		return nil, fmt.Errorf("endpoint.fields must not redefine the file field %q", cfg.Endpoint.FieldName)
	}
	if cfg.Endpoint.TimeoutMS <= 0 {
		return nil, fmt.Errorf("endpoint.timeout_ms must be > 0")
	}
	if cfg.Endpoint.MaxResponseBytes <= 0 {
		return nil, fmt.Errorf("endpoint.max_response_bytes must be > 0")
	}

	if len(cfg.Camera.Command.Argv) == 0 {
		return nil, fmt.Errorf("camera.cmd must not be empty")
	}
	if !HasPlaceholder(cfg.Camera.Command.Argv, "output") {
		return nil, fmt.Errorf("camera.cmd must reference {output}")
	}
	if HasPlaceholder(cfg.Camera.Command.Argv, "device") && strings.TrimSpace(cfg.Camera.Device) == "" {
		return nil, fmt.Errorf("camera.device must not be empty when camera.cmd references {device}")
	}

	if cfg.Audio.MaxClipMS <= 0 {
		return nil, fmt.Errorf("audio.max_clip_ms must be > 0")
	}

	if len(cfg.Speech.Command.Argv) == 0 {
		return nil, fmt.Errorf("speech.cmd must not be empty")
	}
	if cfg.Speech.Pitch <= 0 || cfg.Speech.Pitch > 4 {
		return nil, fmt.Errorf("speech.pitch must be in (0, 4]")
	}
	if cfg.Speech.Rate <= 0 || cfg.Speech.Rate > 4 {
		return nil, fmt.Errorf("speech.rate must be in (0, 4]")
	}
	if strings.TrimSpace(cfg.Speech.Voice) == "" && HasPlaceholder(cfg.Speech.Command.Argv, "voice") {
		return nil, fmt.Errorf("speech.voice must not be empty when speech.cmd references {voice}")
	}

	if len(cfg.Playback.Command.Argv) == 0 {
		return nil, fmt.Errorf("playback.cmd must not be empty")
	}
	if !HasPlaceholder(cfg.Playback.Command.Argv, "file") {
		return nil, fmt.Errorf("playback.cmd must reference {file}")
	}

	if len(cfg.Response.TextFields) == 0 {
		return nil, fmt.Errorf("response.text_fields must not be empty")
	}
	if cfg.Response.MaxChars < 0 {
		return nil, fmt.Errorf("response.max_chars must be >= 0")
	}
	if cfg.Response.FollowAudioURL && len(cfg.Response.AudioURLFields) == 0 {
		warnings = append(warnings, Warning{Message: "response.follow_audio_url is enabled but response.audio_url_fields is empty"})
	}

	for _, prompt := range []struct {
		key   string
		value string
	}{
		{key: "prompts.permission_denied", value: cfg.Prompts.PermissionDenied},
		{key: "prompts.camera_permission_denied", value: cfg.Prompts.CameraPermissionDenied},
		{key: "prompts.capture_error", value: cfg.Prompts.CaptureError},
		{key: "prompts.empty_capture", value: cfg.Prompts.EmptyCapture},
		{key: "prompts.network_error", value: cfg.Prompts.NetworkError},
		{key: "prompts.unknown_response", value: cfg.Prompts.UnknownResponse},
		{key: "prompts.playback_error", value: cfg.Prompts.PlaybackError},
	} {
		if strings.TrimSpace(prompt.value) == "" {
			return nil, fmt.Errorf("%s must not be empty", prompt.key)
		}
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		if _, _, err := net.SplitHostPort(cfg.Telemetry.OTLPEndpoint); err != nil {
			return nil, fmt.Errorf("telemetry.otlp_endpoint must be host:port: %w", err)
		}
	}
	if cfg.Telemetry.Trace && cfg.Telemetry.OTLPEndpoint != "" {
		warnings = append(warnings, Warning{Message: "telemetry.trace and telemetry.otlp_endpoint both set; exporting to OTLP"})
	}

	return warnings, nil
}

func validateHTTPURL(key, value string) (*url.URL, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%s must not be empty", key)
	}
	u, err := url.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s must use http or https", key)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%s must include a host", key)
	}
	return u, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
