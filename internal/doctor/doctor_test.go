package doctor

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/navieyes/internal/config"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckConfigMessages(t *testing.T) {
	loaded := checkConfig(config.Loaded{Path: "/tmp/config.jsonc", Exists: true})
	require.True(t, loaded.Pass)
	require.Equal(t, `loaded "/tmp/config.jsonc"`, loaded.Message)

	defaults := checkConfig(config.Loaded{
		Path:     "/tmp/missing.jsonc",
		Warnings: []config.Warning{{Message: "not found"}},
	})
	require.True(t, defaults.Pass)
	require.Contains(t, defaults.Message, "using defaults")
	require.Contains(t, defaults.Message, "1 warning(s)")
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "speech.cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-espeak")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-espeak", "--stdin"}, "speech.cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "speech.cmd command is available")
}

func TestCheckCameraDevice(t *testing.T) {
	device := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))
	require.True(t, checkCameraDevice(device).Pass)

	missing := checkCameraDevice(filepath.Join(t.TempDir(), "video9"))
	require.False(t, missing.Pass)
	require.Equal(t, "camera.device", missing.Name)
}

func TestCheckEndpointHealthSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(config.EndpointConfig{Photo: server.URL + "/image_analyze/image-to-speech", Health: server.URL + "/health"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "healthy at")
}

func TestCheckEndpointHealthFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(config.EndpointConfig{Photo: server.URL, Health: server.URL + "/health"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 404")
}

func TestCheckEndpointWithoutHealthAcceptsAnyNonServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(config.EndpointConfig{Photo: server.URL + "/image_analyze/image-to-speech"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 404")
}

func TestCheckEndpointServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(config.EndpointConfig{Photo: server.URL + "/x"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 502")
}

func TestCheckEndpointUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	photo := server.URL + "/x"
	server.Close()

	check := checkEndpoint(config.EndpointConfig{Photo: photo})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "request failed")
}

func TestCheckEndpointInvalidURL(t *testing.T) {
	check := checkEndpoint(config.EndpointConfig{Photo: "not a url"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "invalid endpoint")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestCheckCollectorReady(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer()
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	check := checkCollector(listener.Addr().String(), true)
	require.True(t, check.Pass)
	require.Equal(t, "telemetry.otlp", check.Name)
}

func TestRunIncludesConfiguredChecks(t *testing.T) {
	binDir := t.TempDir()
	for _, name := range []string{"fake-speak", "fake-camera", "fake-play"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Speech.Command = config.CommandConfig{Raw: "fake-speak", Argv: []string{"fake-speak"}}
	cfg.Camera.Command = config.CommandConfig{Raw: "fake-camera {output}", Argv: []string{"fake-camera", "{output}"}}
	cfg.Playback.Command = config.CommandConfig{Raw: "fake-play {file}", Argv: []string{"fake-play", "{file}"}}
	cfg.Endpoint.Photo = server.URL + "/image_analyze/image-to-speech"
	cfg.Endpoint.Health = ""

	report := Run(config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})

	names := map[string]bool{}
	for _, check := range report.Checks {
		names[check.Name] = check.Pass
	}
	require.True(t, names["config"])
	require.True(t, names["fake-speak"])
	require.True(t, names["fake-camera"])
	require.True(t, names["fake-play"])
	require.True(t, names["endpoint"])
	require.False(t, names["audio.device"])
	require.NotContains(t, names, "camera.device")
	require.NotContains(t, names, "telemetry.otlp")
	require.False(t, report.OK())
}
