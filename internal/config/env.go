package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override endpoint settings. The process
// environment wins over the `.env` file next to the config.
const (
	EnvBaseURL       = "NAVIEYES_BASE_URL"
	EnvPhotoEndpoint = "NAVIEYES_PHOTO_ENDPOINT"
	EnvVoiceEndpoint = "NAVIEYES_VOICE_ENDPOINT"
)

func applyEnvOverrides(cfg *Config, dotenvPath string) (bool, []Warning, error) {
	fileValues := map[string]string{}
	if strings.TrimSpace(dotenvPath) != "" {
		values, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return false, nil, fmt.Errorf("read env file %q: %w", dotenvPath, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		if value, ok := fileValues[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		return "", false
	}

	applied := false
	var warnings []Warning
	if base, ok := lookup(EnvBaseURL); ok {
		cfg.Endpoint = endpointsFromBase(base, cfg.Endpoint)
		applied = true
	}
	if photo, ok := lookup(EnvPhotoEndpoint); ok {
		cfg.Endpoint.Photo = photo
		applied = true
	}
	if voice, ok := lookup(EnvVoiceEndpoint); ok {
		cfg.Endpoint.Voice = voice
		applied = true
	}
	if applied {
		warnings = append(warnings, Warning{Message: "endpoint settings overridden from environment"})
	}
	return applied, warnings, nil
}
