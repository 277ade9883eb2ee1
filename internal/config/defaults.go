package config

const defaultBaseURL = "http://127.0.0.1:8000"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	camera := "fswebcam --no-banner -q -d {device} -r 1280x720 {output}"
	speech := "espeak-ng --stdin -v {voice} -s {speed} -p {pitch}"
	playback := "pw-play {file}"

	return Config{
		Endpoint: endpointsFromBase(defaultBaseURL, EndpointConfig{
			FieldName:        "file",
			TimeoutMS:        30000,
			MaxResponseBytes: 16 << 20,
			Fields:           map[string]string{},
		}),
		Camera: CameraConfig{
			Device:  "/dev/video0",
			Command: CommandConfig{Raw: camera, Argv: mustParseArgv(camera)},
		},
		Audio: AudioConfig{
			Input:     "default",
			Fallback:  "default",
			MaxClipMS: 30000,
		},
		Speech: SpeechConfig{
			Command: CommandConfig{Raw: speech, Argv: mustParseArgv(speech)},
			Voice:   "en-gb",
			Pitch:   0.8,
			Rate:    1.1,
		},
		Playback: PlaybackConfig{
			Command: CommandConfig{Raw: playback, Argv: mustParseArgv(playback)},
		},
		Response: ResponseConfig{
			TextFields: []string{
				"text_response",
				"response",
				"combined_text",
				"transcription",
				"message",
				"text",
				"groq_response",
				"caption",
			},
			AudioURLFields: []string{"tts_audio_url", "audio_url"},
			FollowAudioURL: true,
			MaxChars:       850,
		},
		Prompts: PromptsConfig{
			Recording:              "Recording started. You may speak now.",
			Processing:             "Recording stopped. Processing your query.",
			PermissionDenied:       "Microphone permission is required!",
			CameraPermissionDenied: "Camera permission is required!",
			CaptureError:           "Capture failed. Please try again.",
			EmptyCapture:           "Nothing was captured. Please try again.",
			NetworkError:           "Could not reach the server. Please try again.",
			UnknownResponse:        "Sorry, I could not understand the response.",
			PlaybackError:          "Sorry, I could not play the response.",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "navieyes",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Telemetry: TelemetryConfig{},
		Debug:     DebugConfig{},
	}
}

// endpointsFromBase fills the per-kind routes served by a NaviEyes backend rooted at base.
func endpointsFromBase(base string, endpoint EndpointConfig) EndpointConfig {
	base = trimTrailingSlash(base)
	endpoint.Photo = base + "/image_analyze/image-to-speech"
	endpoint.Voice = base + "/interact/voice-query"
	endpoint.Health = base + "/"
	return endpoint
}

func trimTrailingSlash(value string) string {
	for len(value) > 0 && value[len(value)-1] == '/' {
		value = value[:len(value)-1]
	}
	return value
}
