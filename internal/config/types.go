// Package config resolves, parses, validates, and defaults navieyes configuration.
package config

// Config is the fully materialized runtime configuration used by navieyes.
type Config struct {
	Endpoint  EndpointConfig
	Camera    CameraConfig
	Audio     AudioConfig
	Speech    SpeechConfig
	Playback  PlaybackConfig
	Response  ResponseConfig
	Prompts   PromptsConfig
	Indicator IndicatorConfig
	Telemetry TelemetryConfig
	Debug     DebugConfig
}

// EndpointConfig names the upload targets for each capture kind.
type EndpointConfig struct {
	Photo            string
	Voice            string
	Health           string
	FieldName        string
	TimeoutMS        int
	MaxResponseBytes int64
	Fields           map[string]string
}

// CameraConfig controls still-photo capture.
type CameraConfig struct {
	Device  string
	Command CommandConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input     string
	Fallback  string
	MaxClipMS int
}

// SpeechConfig controls the text-to-speech command and voice parameters.
type SpeechConfig struct {
	Command CommandConfig
	Voice   string
	Pitch   float64
	Rate    float64
}

// PlaybackConfig controls playback of non-WAV audio responses.
type PlaybackConfig struct {
	Command CommandConfig
}

// ResponseConfig controls how structured responses become spoken text.
type ResponseConfig struct {
	TextFields     []string
	AudioURLFields []string
	FollowAudioURL bool
	MaxChars       int
}

// PromptsConfig holds every sentence navieyes speaks on its own behalf.
// An empty status prompt is skipped.
type PromptsConfig struct {
	Recording              string
	Processing             string
	PermissionDenied       string
	CameraPermissionDenied string
	CaptureError           string
	EmptyCapture           string
	NetworkError           string
	UnknownResponse        string
	PlaybackError          string
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// TelemetryConfig controls pipeline tracing.
type TelemetryConfig struct {
	Trace        bool
	OTLPEndpoint string
	OTLPInsecure bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	KeepSamples  bool
	ResponseDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
