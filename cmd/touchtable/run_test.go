package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-touchtable"
)

func TestRunFlagDefaults(t *testing.T) {

	tests := []struct {
		flag     string
		expected string
	}{
		// connect once at startup unless reconnecting is asked for
		{"redial", "0s"},
		{"addr", touchtable.DefaultStreamAddr},
		{"settings", "data.json"},
		{"write-timeout", "0s"},
		{"preview", ""},
		{"calibrate", "false"},
	}

	for _, tc := range tests {
		f := runCmd.Flags().Lookup(tc.flag)
		require.NotNil(t, f, "flag %s", tc.flag)
		assert.Equal(t, tc.expected, f.DefValue, "flag %s", tc.flag)
	}
}

func TestListenFlagDefaults(t *testing.T) {

	f := listenCmd.Flags().Lookup("addr")
	require.NotNil(t, f)
	assert.Equal(t, touchtable.DefaultStreamAddr, f.DefValue)
}
