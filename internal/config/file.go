package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape shared by the JSONC and YAML formats.
// Pointer fields distinguish "absent" from zero values.
type fileConfig struct {
	Endpoint  *fileEndpoint  `json:"endpoint" yaml:"endpoint"`
	Camera    *fileCamera    `json:"camera" yaml:"camera"`
	Audio     *fileAudio     `json:"audio" yaml:"audio"`
	Speech    *fileSpeech    `json:"speech" yaml:"speech"`
	Playback  *filePlayback  `json:"playback" yaml:"playback"`
	Response  *fileResponse  `json:"response" yaml:"response"`
	Prompts   *filePrompts   `json:"prompts" yaml:"prompts"`
	Indicator *fileIndicator `json:"indicator" yaml:"indicator"`
	Telemetry *fileTelemetry `json:"telemetry" yaml:"telemetry"`
	Debug     *fileDebug     `json:"debug" yaml:"debug"`
}

type fileEndpoint struct {
	BaseURL          *string           `json:"base_url" yaml:"base_url"`
	Photo            *string           `json:"photo" yaml:"photo"`
	Voice            *string           `json:"voice" yaml:"voice"`
	Health           *string           `json:"health" yaml:"health"`
	FieldName        *string           `json:"field_name" yaml:"field_name"`
	TimeoutMS        *int              `json:"timeout_ms" yaml:"timeout_ms"`
	MaxResponseBytes *int64            `json:"max_response_bytes" yaml:"max_response_bytes"`
	Fields           map[string]string `json:"fields" yaml:"fields"`
}

type fileCamera struct {
	Device *string `json:"device" yaml:"device"`
	Cmd    *string `json:"cmd" yaml:"cmd"`
}

type fileAudio struct {
	Input     *string `json:"input" yaml:"input"`
	Fallback  *string `json:"fallback" yaml:"fallback"`
	MaxClipMS *int    `json:"max_clip_ms" yaml:"max_clip_ms"`
}

type fileSpeech struct {
	Cmd   *string  `json:"cmd" yaml:"cmd"`
	Voice *string  `json:"voice" yaml:"voice"`
	Pitch *float64 `json:"pitch" yaml:"pitch"`
	Rate  *float64 `json:"rate" yaml:"rate"`
}

type filePlayback struct {
	Cmd *string `json:"cmd" yaml:"cmd"`
}

type fileResponse struct {
	TextFields     *stringList `json:"text_fields" yaml:"text_fields"`
	AudioURLFields *stringList `json:"audio_url_fields" yaml:"audio_url_fields"`
	FollowAudioURL *bool       `json:"follow_audio_url" yaml:"follow_audio_url"`
	MaxChars       *int        `json:"max_chars" yaml:"max_chars"`
}

type filePrompts struct {
	Recording              *string `json:"recording" yaml:"recording"`
	Processing             *string `json:"processing" yaml:"processing"`
	PermissionDenied       *string `json:"permission_denied" yaml:"permission_denied"`
	CameraPermissionDenied *string `json:"camera_permission_denied" yaml:"camera_permission_denied"`
	CaptureError           *string `json:"capture_error" yaml:"capture_error"`
	EmptyCapture           *string `json:"empty_capture" yaml:"empty_capture"`
	NetworkError           *string `json:"network_error" yaml:"network_error"`
	UnknownResponse        *string `json:"unknown_response" yaml:"unknown_response"`
	PlaybackError          *string `json:"playback_error" yaml:"playback_error"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type fileTelemetry struct {
	Trace        *bool   `json:"trace" yaml:"trace"`
	OTLPEndpoint *string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure *bool   `json:"otlp_insecure" yaml:"otlp_insecure"`
}

type fileDebug struct {
	KeepSamples  *bool `json:"keep_samples" yaml:"keep_samples"`
	ResponseDump *bool `json:"response_dump" yaml:"response_dump"`
}

// stringList accepts either a list or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitCommaList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitCommaList(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string array or comma-delimited string", node.Line)
	}
}

func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (payload fileConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Endpoint != nil {
		ep := payload.Endpoint
		if ep.BaseURL != nil {
			cfg.Endpoint = endpointsFromBase(strings.TrimSpace(*ep.BaseURL), cfg.Endpoint)
		}
		if ep.Photo != nil {
			cfg.Endpoint.Photo = strings.TrimSpace(*ep.Photo)
		}
		if ep.Voice != nil {
			cfg.Endpoint.Voice = strings.TrimSpace(*ep.Voice)
		}
		if ep.Health != nil {
			cfg.Endpoint.Health = strings.TrimSpace(*ep.Health)
		}
		if ep.FieldName != nil {
			cfg.Endpoint.FieldName = strings.TrimSpace(*ep.FieldName)
		}
		if ep.TimeoutMS != nil {
			cfg.Endpoint.TimeoutMS = *ep.TimeoutMS
		}
		if ep.MaxResponseBytes != nil {
			cfg.Endpoint.MaxResponseBytes = *ep.MaxResponseBytes
		}
		if ep.Fields != nil {
			fields := make(map[string]string, len(ep.Fields))
			for key, value := range ep.Fields {
				key = strings.TrimSpace(key)
				if key == "" {
					return nil, fmt.Errorf("endpoint.fields contains an empty field name")
				}
				fields[key] = value
			}
			cfg.Endpoint.Fields = fields
		}
	}

	if payload.Camera != nil {
		if payload.Camera.Device != nil {
			cfg.Camera.Device = strings.TrimSpace(*payload.Camera.Device)
		}
		if payload.Camera.Cmd != nil {
			cmd, err := commandFrom(*payload.Camera.Cmd)
			if err != nil {
				return nil, fmt.Errorf("invalid camera.cmd: %w", err)
			}
			cfg.Camera.Command = cmd
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
		if payload.Audio.MaxClipMS != nil {
			cfg.Audio.MaxClipMS = *payload.Audio.MaxClipMS
		}
	}

	if payload.Speech != nil {
		if payload.Speech.Cmd != nil {
			cmd, err := commandFrom(*payload.Speech.Cmd)
			if err != nil {
				return nil, fmt.Errorf("invalid speech.cmd: %w", err)
			}
			cfg.Speech.Command = cmd
		}
		if payload.Speech.Voice != nil {
			cfg.Speech.Voice = strings.TrimSpace(*payload.Speech.Voice)
		}
		if payload.Speech.Pitch != nil {
			cfg.Speech.Pitch = *payload.Speech.Pitch
		}
		if payload.Speech.Rate != nil {
			cfg.Speech.Rate = *payload.Speech.Rate
		}
	}

	if payload.Playback != nil && payload.Playback.Cmd != nil {
		cmd, err := commandFrom(*payload.Playback.Cmd)
		if err != nil {
			return nil, fmt.Errorf("invalid playback.cmd: %w", err)
		}
		cfg.Playback.Command = cmd
	}

	if payload.Response != nil {
		if payload.Response.TextFields != nil {
			cfg.Response.TextFields = append([]string(nil), (*payload.Response.TextFields)...)
		}
		if payload.Response.AudioURLFields != nil {
			cfg.Response.AudioURLFields = append([]string(nil), (*payload.Response.AudioURLFields)...)
		}
		if payload.Response.FollowAudioURL != nil {
			cfg.Response.FollowAudioURL = *payload.Response.FollowAudioURL
		}
		if payload.Response.MaxChars != nil {
			cfg.Response.MaxChars = *payload.Response.MaxChars
		}
	}

	if p := payload.Prompts; p != nil {
		setString(&cfg.Prompts.Recording, p.Recording)
		setString(&cfg.Prompts.Processing, p.Processing)
		setString(&cfg.Prompts.PermissionDenied, p.PermissionDenied)
		setString(&cfg.Prompts.CameraPermissionDenied, p.CameraPermissionDenied)
		setString(&cfg.Prompts.CaptureError, p.CaptureError)
		setString(&cfg.Prompts.EmptyCapture, p.EmptyCapture)
		setString(&cfg.Prompts.NetworkError, p.NetworkError)
		setString(&cfg.Prompts.UnknownResponse, p.UnknownResponse)
		setString(&cfg.Prompts.PlaybackError, p.PlaybackError)
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*payload.Indicator.DesktopAppName)
		}
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		if payload.Indicator.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *payload.Indicator.ErrorTimeoutMS
		}
	}

	if payload.Telemetry != nil {
		if payload.Telemetry.Trace != nil {
			cfg.Telemetry.Trace = *payload.Telemetry.Trace
		}
		if payload.Telemetry.OTLPEndpoint != nil {
			cfg.Telemetry.OTLPEndpoint = strings.TrimSpace(*payload.Telemetry.OTLPEndpoint)
		}
		if payload.Telemetry.OTLPInsecure != nil {
			cfg.Telemetry.OTLPInsecure = *payload.Telemetry.OTLPInsecure
		}
	}

	if payload.Debug != nil {
		if payload.Debug.KeepSamples != nil {
			cfg.Debug.KeepSamples = *payload.Debug.KeepSamples
		}
		if payload.Debug.ResponseDump != nil {
			cfg.Debug.ResponseDump = *payload.Debug.ResponseDump
		}
	}

	return warnings, nil
}

func commandFrom(raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}
