// Package version reports how the navconsole binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set with -ldflags "-X navconsole/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information, filling the commit from the
// embedded VCS stamp when it was not set at link time.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok && info.Commit == "unknown" {
		for _, setting := range bi.Settings {
			if setting.Key == "vcs.revision" {
				info.Commit = setting.Value
			}
		}
	}
	return info
}

// String returns a one-line summary of the build.
func (i Info) String() string {
	built := i.BuildDate
	if age, ok := buildAge(i.BuildDate, time.Now()); ok {
		built += ", " + age
	}
	return fmt.Sprintf("navconsole %s (commit %s, built %s, %s %s)", i.Version, i.Commit, built, i.GoVersion, i.Platform)
}

func buildAge(buildDate string, now time.Time) (string, bool) {
	t, err := time.Parse(time.RFC3339, buildDate)
	if err != nil {
		return "", false
	}
	d := now.Sub(t)
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes())), true
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours())), true
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24)), true
	}
}
