package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "none", info.GitCommit)
	assert.Equal(t, "unknown", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfoString(t *testing.T) {
	info := GetInfo()
	s := info.String()

	assert.Contains(t, s, info.Version)
	assert.Contains(t, s, info.GoVersion)
	assert.Contains(t, s, info.Platform)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"v1.2", "1.2.0"},
		{"v0.4.0-rc.1", "0.4.0-rc.1"},
		{"dev", "dev"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.input))
		})
	}
}

func TestShortCommit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"long SHA truncated", "abc1234def5678", "abc1234"},
		{"exact 7 unchanged", "abc1234", "abc1234"},
		{"short unchanged", "abc", "abc"},
		{"empty unchanged", "", ""},
		{"none unchanged", "none", "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shortCommit(tt.input))
		})
	}
}
