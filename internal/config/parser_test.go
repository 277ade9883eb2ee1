package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseSelectsFormatByLeadingBrace(t *testing.T) {
	jsonCfg, _, err := Parse(`{"audio":{"max_clip_ms":5000}}`, Default())
	require.NoError(t, err)
	require.Equal(t, 5000, jsonCfg.Audio.MaxClipMS)

	yamlCfg, _, err := Parse("audio:\n  max_clip_ms: 5000\n", Default())
	require.NoError(t, err)
	require.Equal(t, jsonCfg, yamlCfg)
}

func TestParseYAMLFullDocument(t *testing.T) {
	input := `
# NaviEyes on a Raspberry Pi
endpoint:
  photo: https://navi.example/image_analyze/image-to-speech
  voice: https://navi.example/interact/voice-query
  timeout_ms: 10000
camera:
  device: /dev/video2
  cmd: "fswebcam -d {device} '{output}'"
speech:
  voice: en-us
  pitch: 1.0
response:
  text_fields: [caption, message]
  follow_audio_url: false
  max_chars: 0
prompts:
  recording: ""
telemetry:
  trace: true
`
	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "https://navi.example/image_analyze/image-to-speech", cfg.Endpoint.Photo)
	require.Equal(t, 10000, cfg.Endpoint.TimeoutMS)
	require.Equal(t, "/dev/video2", cfg.Camera.Device)
	require.Equal(t, []string{"fswebcam", "-d", "{device}", "{output}"}, cfg.Camera.Command.Argv)
	require.Equal(t, "en-us", cfg.Speech.Voice)
	require.Equal(t, []string{"caption", "message"}, cfg.Response.TextFields)
	require.False(t, cfg.Response.FollowAudioURL)
	require.Zero(t, cfg.Response.MaxChars)
	require.Empty(t, cfg.Prompts.Recording)
	require.Equal(t, Default().Prompts.Processing, cfg.Prompts.Processing)
	require.True(t, cfg.Telemetry.Trace)
}

func TestParseYAMLUnknownKeyFails(t *testing.T) {
	_, _, err := Parse("audio:\n  volume: 3\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestParseYAMLErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("audio:\n  max_clip_ms: [oops\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("audio:\n  input: a\n---\naudio:\n  input: b\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple YAML documents")
}

func TestParseYAMLCommaStringList(t *testing.T) {
	cfg, _, err := Parse("response:\n  audio_url_fields: tts_audio_url, audio_url\n", Default())
	require.NoError(t, err)
	require.Equal(t, []string{"tts_audio_url", "audio_url"}, cfg.Response.AudioURLFields)
}

func TestParseValidationErrorPropagates(t *testing.T) {
	_, _, err := Parse(`{"speech":{"rate":0}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "speech.rate")
}
