package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, commit, date string) {
	t.Helper()
	ov, oc, od := Version, GitCommit, BuildDate
	Set(v, commit, date)
	t.Cleanup(func() { Set(ov, oc, od) })
}

func TestString(t *testing.T) {
	tests := []struct {
		name                  string
		version, commit, date string
		want                  string
	}{
		{"development", "0.4.0", unknown, unknown, "cmdhelper v0.4.0"},
		{"release", "0.4.1", "0123456789abcdef", "2026-10-01", "cmdhelper v0.4.1, commit 0123456, built 2026-10-01"},
		{"invalid", "four", unknown, unknown, "cmdhelper vfour (invalid version)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, tt.commit, tt.date)
			assert.Equal(t, tt.want, String())
		})
	}
}

func TestDetailed(t *testing.T) {
	withBuild(t, "0.5.0-rc.1+42.abc", "abc", "2026-10-01")
	d := Detailed()
	assert.Contains(t, d, "Prerelease: rc.1")
	assert.Contains(t, d, "Build Metadata: 42.abc")
	assert.False(t, IsDevelopment())

	info, err := Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.SemVer.Minor())
}

func TestCompare(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"0.4.0", "0.4.1", -1},
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.0-rc.1", 1},
	}
	for _, tt := range tests {
		got, err := Compare(tt.v1, tt.v2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.v1, tt.v2)
	}
	_, err := Compare("x", "1.0.0")
	assert.Error(t, err)
}

func TestBuildTime(t *testing.T) {
	withBuild(t, "0.4.0", "abc", "2026-10-01T12:00:00Z")
	bt, err := BuildTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), bt)

	Set("0.4.0", "abc", unknown)
	_, err = BuildTime()
	assert.Error(t, err)
	Set("0.4.0", "abc", "yesterday")
	_, err = BuildTime()
	assert.Error(t, err)
}
