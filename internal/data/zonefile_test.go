package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverZones(t *testing.T) {
	rows := []RawRow{
		{"cnecName": "a", "ptdf_NO1": 0.1, "ptdf_SE3": nil},
		{"cnecName": "b", "ptdf_NO1": 0.2, "ptdf_NO2_NEW": 0.3, "ptdf_": 1.0},
	}
	assert.Equal(t, []string{"NO1", "NO2_NEW", "SE3"}, DiscoverZones(rows))
	assert.Empty(t, DiscoverZones(nil))
}

func TestWithZonesAndSave(t *testing.T) {
	base := DefaultZones()
	zt, added, err := base.WithZones([]string{"NO1", "NO2_NEW"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NO2_NEW"}, added)
	assert.True(t, zt.Has("NO2_NEW"))
	assert.False(t, base.Has("NO2_NEW"), "original table untouched")

	path := filepath.Join(t.TempDir(), "sub", "zones.yaml")
	require.NoError(t, SaveZones(zt, path))

	loaded, err := LoadZones(path)
	require.NoError(t, err)
	assert.Equal(t, zt.Codes(), loaded.Codes())
	assert.Equal(t, len(base.Physical()), len(loaded.Physical()))
	assert.Equal(t, base.Borders(), loaded.Borders())
}
