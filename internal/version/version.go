// Package version reports build information set with -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/information-sharing-networks/esign-demo/internal/version.version=v1.2.0"
package version

import (
	"runtime/debug"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
}

// Get returns the build information. When the commit was not set at link time the vcs revision
// recorded by the go toolchain is used, if present.
func Get() Info {
	info := Info{Version: version, BuildDate: buildDate, GitCommit: gitCommit}
	if info.GitCommit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}
