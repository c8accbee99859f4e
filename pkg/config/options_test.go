package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), opts)
}

func TestLoadRejectsNonPositivePageSize(t *testing.T) {
	t.Setenv("LEDGERDB_PAGE_SIZE", "0")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("LEDGERDB_BUFFER_POOL_SIZE", "128")
	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 128, opts.BufferPoolSize)
}
