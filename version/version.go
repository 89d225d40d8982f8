package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/praetorian-inc/diskaudit/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// resolved returns the ldflags values, filling gaps from the module build info
// that `go install` records.
func resolved() (ver, commit, built string) {
	ver, commit, built = Version, Commit, BuildTime

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ver, commit, built
	}
	if ver == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		ver = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "none" && len(s.Value) >= 7 {
				commit = s.Value[:7]
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		}
	}
	return ver, commit, built
}

func FullVersion() string {
	ver, commit, built := resolved()
	return fmt.Sprintf("diskaudit %s (commit %s, built %s, %s %s/%s)",
		ver, commit, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func AbbreviatedVersion() string {
	ver, commit, _ := resolved()
	return fmt.Sprintf("%s-%s", ver, commit)
}
