// Package version reports the cmdhelper build. Values are injected with -ldflags:
//
//	-X cmdhelper/internal/version.Version=0.4.1
//	-X cmdhelper/internal/version.GitCommit=$(git rev-parse HEAD)
//	-X cmdhelper/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)
package version

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const unknown = "unknown"

// Build information set at link time.
var (
	Version   = "0.4.0"
	GitCommit = unknown
	BuildDate = unknown
)

// Info is the parsed build information.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// Get parses the injected version.
func Get() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		SemVer:    sv,
	}, nil
}

// ShortCommit returns the first seven characters of the commit hash.
func ShortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String is the one-line banner written at attach time.
func String() string {
	info, err := Get()
	if err != nil {
		return fmt.Sprintf("cmdhelper v%s (invalid version)", Version)
	}
	parts := []string{"cmdhelper v" + info.Version}
	if GitCommit != unknown && GitCommit != "" {
		parts = append(parts, "commit "+ShortCommit())
	}
	if BuildDate != unknown && BuildDate != "" {
		parts = append(parts, "built "+BuildDate)
	}
	return strings.Join(parts, ", ")
}

// Detailed lists every field, one per line.
func Detailed() string {
	info, err := Get()
	if err != nil {
		return fmt.Sprintf("cmdhelper v%s (error: %v)", Version, err)
	}
	lines := []string{
		"cmdhelper v" + info.Version,
		"Git Commit: " + info.GitCommit,
		"Build Date: " + info.BuildDate,
	}
	if pre := info.SemVer.Prerelease(); pre != "" {
		lines = append(lines, "Prerelease: "+pre)
	}
	if meta := info.SemVer.Metadata(); meta != "" {
		lines = append(lines, "Build Metadata: "+meta)
	}
	lines = append(lines, "Go Version: "+info.GoVersion, "Platform: "+info.Platform)
	return strings.Join(lines, "\n")
}

// IsDevelopment reports a build without injected commit or date.
func IsDevelopment() bool {
	return GitCommit == unknown || BuildDate == unknown
}

// Compare returns -1, 0 or 1 as v1 is older, equal to or newer than v2.
func Compare(v1, v2 string) (int, error) {
	sv1, err := semver.NewVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1 '%s': %w", v1, err)
	}
	sv2, err := semver.NewVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2 '%s': %w", v2, err)
	}
	return sv1.Compare(sv2), nil
}

// BuildTime parses BuildDate.
func BuildTime() (time.Time, error) {
	if BuildDate == unknown || BuildDate == "" {
		return time.Time{}, fmt.Errorf("build date not available")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, BuildDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse build date '%s'", BuildDate)
}

// Set overrides the build information, for tests.
func Set(version, gitCommit, buildDate string) {
	Version, GitCommit, BuildDate = version, gitCommit, buildDate
}
