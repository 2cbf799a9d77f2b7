package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"bottle", "cup"}, c.Labels())
}

func TestLookup_KnownLabels(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, label := range []string{"bottle", "cup"} {
		entries := c.Lookup(label)
		require.NotEmpty(t, entries, "label %q", label)
		for _, e := range entries {
			assert.NotEmpty(t, e.Title)
			assert.NotEmpty(t, e.Links)
		}
	}
}

func TestLookup_UnknownLabelIsEmpty(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Empty(t, c.Lookup("chair"))
	assert.Empty(t, c.Lookup(""))
}
