package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty photo endpoint", mutate: func(c *Config) { c.Endpoint.Photo = "" }, wantErr: "endpoint.photo"},
		{name: "relative voice endpoint", mutate: func(c *Config) { c.Endpoint.Voice = "/interact/voice-query" }, wantErr: "endpoint.voice"},
		{name: "ftp endpoint", mutate: func(c *Config) { c.Endpoint.Photo = "ftp://host/x" }, wantErr: "http or https"},
		{name: "empty field name", mutate: func(c *Config) { c.Endpoint.FieldName = " " }, wantErr: "field_name"},
		{name: "field clash", mutate: func(c *Config) { c.Endpoint.Fields = map[string]string{"file": "x"} }, wantErr: "redefine"},
		{name: "zero timeout", mutate: func(c *Config) { c.Endpoint.TimeoutMS = 0 }, wantErr: "timeout_ms"},
		{name: "zero response limit", mutate: func(c *Config) { c.Endpoint.MaxResponseBytes = 0 }, wantErr: "max_response_bytes"},
		{name: "camera without output", mutate: func(c *Config) { c.Camera.Command = CommandConfig{Raw: "snap", Argv: []string{"snap"}} }, wantErr: "{output}"},
		{name: "camera without device", mutate: func(c *Config) { c.Camera.Device = "" }, wantErr: "camera.device"},
		{name: "zero clip length", mutate: func(c *Config) { c.Audio.MaxClipMS = 0 }, wantErr: "max_clip_ms"},
		{name: "empty speech cmd", mutate: func(c *Config) { c.Speech.Command = CommandConfig{} }, wantErr: "speech.cmd"},
		{name: "pitch out of range", mutate: func(c *Config) { c.Speech.Pitch = 0 }, wantErr: "speech.pitch"},
		{name: "rate out of range", mutate: func(c *Config) { c.Speech.Rate = 5 }, wantErr: "speech.rate"},
		{name: "playback without file", mutate: func(c *Config) { c.Playback.Command = CommandConfig{Raw: "aplay", Argv: []string{"aplay"}} }, wantErr: "{file}"},
		{name: "no text fields", mutate: func(c *Config) { c.Response.TextFields = nil }, wantErr: "text_fields"},
		{name: "negative max chars", mutate: func(c *Config) { c.Response.MaxChars = -1 }, wantErr: "max_chars"},
		{name: "empty failure prompt", mutate: func(c *Config) { c.Prompts.NetworkError = "" }, wantErr: "prompts.network_error"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "bad otlp endpoint", mutate: func(c *Config) { c.Telemetry.OTLPEndpoint = "collector" }, wantErr: "otlp_endpoint"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Endpoint.Photo = "http://example.com/image_analyze/image-to-speech"
	cfg.Response.AudioURLFields = nil
	cfg.Prompts.Recording = ""

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "plain http")
	require.Contains(t, warnings[1].Message, "audio_url_fields")
}
