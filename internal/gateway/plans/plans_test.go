package plans

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	free, err := c.Limits(Free)
	require.NoError(t, err)
	assert.Equal(t, int64(100), free.SearchesPerMonth)

	empty, err := c.Limits("")
	require.NoError(t, err)
	assert.Equal(t, free, empty, "empty plan resolves to the default plan")

	ent, err := c.Limits(Enterprise)
	require.NoError(t, err)
	assert.True(t, IsUnlimited(ent.SearchesPerMonth))
	assert.False(t, IsUnlimited(ent.PromptDollars))

	assert.Equal(t, []string{Enterprise, Free, Pro}, c.Names())
}

func TestUnknownPlan(t *testing.T) {
	_, err := Default().Limits("platinum")
	assert.True(t, errors.Is(err, ErrUnknownPlan))
}

func TestUnlimitedIsNotZero(t *testing.T) {
	assert.True(t, IsUnlimited(int64(Unlimited)))
	assert.False(t, IsUnlimited(int64(0)))
	assert.True(t, IsUnlimited(float64(Unlimited)))
	assert.False(t, IsUnlimited(0.0))
}

func TestParseOverridesKeepUnsetFields(t *testing.T) {
	c, err := Parse([]byte(`
default_plan: pro
plans:
  free:
    searches_per_month: 50
  startup:
    searches_per_month: 500
    exports_per_month: -1
    prompt_dollars: 5
`))
	require.NoError(t, err)

	free, err := c.Limits(Free)
	require.NoError(t, err)
	assert.Equal(t, int64(50), free.SearchesPerMonth)
	assert.Equal(t, int64(10), free.ExportsPerMonth, "unset field keeps built-in value")

	startup, err := c.Limits("startup")
	require.NoError(t, err)
	assert.True(t, IsUnlimited(startup.ExportsPerMonth))
	assert.Equal(t, 5.0, startup.PromptDollars)

	assert.Equal(t, Pro, c.DefaultPlan())
}

func TestParseRejectsInvalidLimits(t *testing.T) {
	_, err := Parse([]byte(`
plans:
  free:
    searches_per_month: -5
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`default_plan: missing`))
	assert.True(t, errors.Is(err, ErrUnknownPlan))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  pro:\n    exports_per_month: 300\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	pro, err := c.Limits(Pro)
	require.NoError(t, err)
	assert.Equal(t, int64(300), pro.ExportsPerMonth)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
