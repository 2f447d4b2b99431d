// Package version reports build information of the replyd binaries.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/memohai/replyd/internal/version.Version=...".
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info is the build description served by /ping and printed by replyctl.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build info, filling commit and time from VCS stamps when ldflags left them empty.
func Get() Info {
	once.Do(func() {
		info = Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime, GoVersion: runtime.Version()}
		if info.Commit != "" {
			return
		}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.BuildTime = s.Value
			}
		}
	})
	return info
}

// String renders "version (short commit)".
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return i.Version + " (" + short + ")"
}
