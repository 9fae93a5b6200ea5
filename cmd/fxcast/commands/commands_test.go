package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
)

func TestParseHorizons(t *testing.T) {
	hs, err := parseHorizons([]string{"7", "90d"})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Horizon{contracts.Horizon7, contracts.Horizon90}, hs)

	hs, err = parseHorizons(nil)
	require.NoError(t, err)
	assert.Empty(t, hs)

	_, err = parseHorizons([]string{"7", "14"})
	assert.Error(t, err)
}

func TestFormatMetric(t *testing.T) {
	v := 0.12345
	assert.Equal(t, "0.1235", formatMetric(&v, "%.4f"))
	assert.Equal(t, "n/a", formatMetric(nil, "%.4f"))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "backtest", "readiness", "artifacts", "serve", "scheduler"} {
		assert.True(t, names[want], want)
	}
}
