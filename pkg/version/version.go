// Package version exposes the application version derived from build metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev" fallback.
//
// Usage:
//
//	version.GitCommit    // "a3f8c2d1" or "dev"
//	version.Full()       // "agentrelay/a3f8c2d1"
//	version.UserAgent()  // "agentrelay/a3f8c2d1 (go1.25.6)"
package version

import (
	"runtime"
	"runtime/debug"
)

// AppName is the application name used in version strings and the
// upstream User-Agent header.
const AppName = "agentrelay"

// gitCommitOverride is set via -ldflags at build time for container builds
// where .git is unavailable:
//
//	-ldflags "-X github.com/codeready-toolchain/agentrelay/pkg/version.gitCommitOverride=$(git rev-parse HEAD)"
var gitCommitOverride string

// GitCommit is the short git commit hash (8 chars) from build info.
// Set to "dev" when build info is unavailable (e.g., `go test`, non-git builds).
var GitCommit = resolveCommit(gitCommitOverride, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolveCommit(override string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return shortCommit(override)
	}
	info, ok := buildInfo()
	if !ok || info == nil {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shortCommit(s.Value)
		}
	}
	return "dev"
}

func shortCommit(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "agentrelay/<commit>" for logging and the health endpoint.
func Full() string {
	return AppName + "/" + GitCommit
}

// UserAgent returns the User-Agent sent on upstream requests.
func UserAgent() string {
	return Full() + " (" + runtime.Version() + ")"
}
