package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoString(t *testing.T) {
	i := Info{Version: "v1.4.0", CommitHash: "abc1234def", BuildTime: "2026-01-02"}
	assert.Equal(t, "linkpulse v1.4.0 (commit abc1234def, built 2026-01-02)", i.String())
	assert.Equal(t, "abc1234", i.Short())

	dev := Info{Version: "dev", CommitHash: "abc", BuildTime: "unknown"}
	assert.True(t, strings.HasPrefix(dev.String(), "linkpulse dev"))
	assert.Equal(t, "abc", dev.Short())
}

func TestGet(t *testing.T) {
	i := Get()
	assert.Equal(t, Version, i.Version)
	assert.NotEmpty(t, i.GoVersion)
	assert.Contains(t, i.Platform, "/")
}

func TestSatisfies(t *testing.T) {
	i := Info{Version: "v1.4.0"}

	ok, err := i.Satisfies(">= 1.2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = i.Satisfies("^2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = i.Satisfies("not a constraint")
	assert.Error(t, err)

	_, err = Info{Version: "dev"}.Satisfies(">= 1")
	assert.ErrorIs(t, err, ErrUnversioned)

	_, err = Info{Version: "nightly"}.Satisfies(">= 1")
	assert.Error(t, err)
}
