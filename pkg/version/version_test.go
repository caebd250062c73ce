package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestString(t *testing.T) {
	info := Info{
		Version:   "0.3.0",
		GitCommit: "4f9d2c1",
		BuildTime: "2026-08-23T10:00:00Z",
		GoVersion: "go1.25.1",
	}

	s := info.String()
	assert.Equal(t, "Version: 0.3.0, GitCommit: 4f9d2c1, BuildTime: 2026-08-23T10:00:00Z, GoVersion: go1.25.1", s)
}

func TestJSON(t *testing.T) {
	info := Get()

	out, err := info.JSON()
	require.NoError(t, err)

	var parsed Info
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, info, parsed)

	// Key names are part of the CLI's --json contract.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	for _, key := range []string{"version", "gitCommit", "buildTime", "goVersion"} {
		assert.Contains(t, raw, key)
	}
}
