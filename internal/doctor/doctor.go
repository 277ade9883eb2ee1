// Package doctor runs readiness diagnostics for config, tools, devices, and the upload endpoint.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/navieyes/internal/audio"
	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/permission"
	"github.com/rbright/navieyes/internal/telemetry"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	checks = append(checks, checkCommand(cfg.Config.Speech.Command.Argv, "speech.cmd"))
	checks = append(checks, checkCommand(cfg.Config.Camera.Command.Argv, "camera.cmd"))
	if config.HasPlaceholder(cfg.Config.Camera.Command.Argv, "device") {
		checks = append(checks, checkCameraDevice(cfg.Config.Camera.Device))
	}
	checks = append(checks, checkCommand(cfg.Config.Playback.Command.Argv, "playback.cmd"))
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkEndpoint(cfg.Config.Endpoint))

	if endpoint := strings.TrimSpace(cfg.Config.Telemetry.OTLPEndpoint); endpoint != "" {
		checks = append(checks, checkCollector(endpoint, cfg.Config.Telemetry.OTLPInsecure))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkCameraDevice(device string) Check {
	if err := permission.DeviceAccess(device)(context.Background()); err != nil {
		return Check{Name: "camera.device", Pass: false, Message: err.Error()}
	}
	return Check{Name: "camera.device", Pass: true, Message: fmt.Sprintf("%s is accessible", device)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkEndpoint probes endpoint.health when set. Otherwise any HTTP answer
// from the photo endpoint's origin counts as reachable.
func checkEndpoint(cfg config.EndpointConfig) Check {
	target := strings.TrimSpace(cfg.Health)
	strict := target != ""
	if !strict {
		origin, err := originOf(cfg.Photo)
		if err != nil {
			return Check{Name: "endpoint", Pass: false, Message: err.Error()}
		}
		target = origin
	}

	client := http.Client{Timeout: probeTimeout}
	resp, err := client.Get(target)
	if err != nil {
		return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if strict && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, target)}
	}
	if resp.StatusCode >= 500 {
		return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, target)}
	}
	if strict {
		return Check{Name: "endpoint", Pass: true, Message: fmt.Sprintf("healthy at %s", target)}
	}
	return Check{Name: "endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", target, resp.StatusCode)}
}

func originOf(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q", raw)
	}
	return parsed.Scheme + "://" + parsed.Host + "/", nil
}

func checkCollector(endpoint string, plaintext bool) Check {
	if err := telemetry.CheckCollector(context.Background(), endpoint, plaintext, probeTimeout); err != nil {
		return Check{Name: "telemetry.otlp", Pass: false, Message: err.Error()}
	}
	return Check{Name: "telemetry.otlp", Pass: true, Message: fmt.Sprintf("collector ready at %s", endpoint)}
}
