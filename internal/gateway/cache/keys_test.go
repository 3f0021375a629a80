package cache

import (
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIgnoresInsertionOrder(t *testing.T) {
	c := New(Options{})

	a := map[string]any{}
	a["query"] = "mineria"
	a["province"] = "Lima"
	a["page"] = 2

	b := map[string]any{}
	b["page"] = 2
	b["province"] = "Lima"
	b["query"] = "mineria"

	assert.Equal(t, c.Key(DomainCompanySearch, a), c.Key(DomainCompanySearch, b))
}

func TestKeyDropsEmptyValues(t *testing.T) {
	c := New(Options{})
	var nilSlice []string
	var nilPtr *int

	full := c.Key("d", map[string]any{
		"query":    "x",
		"province": "",
		"sector":   nil,
		"tags":     nilSlice,
		"min":      nilPtr,
	})
	bare := c.Key("d", map[string]any{"query": "x"})

	assert.Equal(t, bare, full)
	assert.Equal(t, `d:query:"x"`, bare)
}

func TestKeyKeepsZeroNumbers(t *testing.T) {
	c := New(Options{})

	withZero := c.Key("d", map[string]any{"page": 0})
	without := c.Key("d", map[string]any{})

	assert.NotEqual(t, withZero, without)
}

func TestKeyFormat(t *testing.T) {
	c := New(Options{})

	key := c.Key("company_search", map[string]any{
		"query":   "bancos",
		"filters": map[string]any{"z": 1, "a": true},
	})

	assert.Equal(t, `company_search:filters:{"a":true,"z":1}|query:"bancos"`, key)
}

func TestKeyDomainsDoNotCollide(t *testing.T) {
	c := New(Options{})
	params := map[string]any{"query": "same"}

	assert.NotEqual(t, c.Key(DomainWebSearch, params), c.Key(DomainCompanySearch, params))
}

func TestKeyFallbackOnUnserializableValue(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	c := New(Options{Logger: logger})

	params := map[string]any{"query": "x", "callback": func() {}}
	k1 := c.Key("d", params)
	k2 := c.Key("d", params)

	assert.True(t, strings.HasPrefix(k1, "d:"))
	assert.NotEqual(t, k1, k2, "fallback keys are one-off and never collide")
	require.Len(t, hook.Entries, 2)
}

func TestKeyFallbackOnCycle(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	c := New(Options{Logger: logger})

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	k1 := c.Key("d", map[string]any{"v": cyclic})
	k2 := c.Key("d", map[string]any{"v": cyclic})
	assert.NotEqual(t, k1, k2)

	c.Set(k1, "stored")
	_, ok := c.Get(k2, 0)
	assert.False(t, ok)
}
