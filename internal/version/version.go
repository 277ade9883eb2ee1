// Package version reports build metadata set by -ldflags, falling back to
// the module and VCS stamps the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type Info struct {
	Version string
	Commit  string
	Date    string
	Go      string
}

var readBuildInfo = debug.ReadBuildInfo

// Current merges ldflags values with embedded build info. Values set through
// ldflags win.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}

	build, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch {
		case setting.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = shortRevision(setting.Value)
		case setting.Key == "vcs.time" && info.Date == "unknown":
			info.Date = setting.Value
		}
	}
	return info
}

func String() string {
	info := Current()
	return fmt.Sprintf("navieyes %s (commit=%s, date=%s, go=%s)", info.Version, info.Commit, info.Date, info.Go)
}

// UserAgent is sent with every request to the analysis endpoint.
func UserAgent() string {
	return "navieyes/" + Current().Version
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
