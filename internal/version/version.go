package version

import (
	"fmt"
	"runtime/debug"
)

const AppName = "portal"

// Set at build time with -ldflags "-X github.com/plushcare/portal/internal/version.Version=..."
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get merges the ldflags values with the VCS stamp from the Go build info.
// ldflags win where both are set.
func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" && s.Value != "" {
				out.BuildDate = s.Value
			}
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
		case "vcs.modified":
			if out.VCSDirty == nil {
				dirty := s.Value == "true"
				out.VCSDirty = &dirty
			}
		}
	}
	return out
}

// String is the one-line form printed by -V
func (i Info) String() string {
	dirty := ""
	if i.VCSDirty != nil && *i.VCSDirty {
		dirty = "-dirty"
	}
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s %s (commit %s%s, built %s, %s)", AppName, i.Version, commit, dirty, i.BuildDate, i.GoVersion)
}
