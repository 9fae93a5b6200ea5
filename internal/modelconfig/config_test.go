package modelconfig

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
)

func TestLoad(t *testing.T) {
	path := "../../config/fxcast.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)
	assert.Equal(t, "fxcast_usdkrw", cfg.Meta.ConfigID)
	assert.Len(t, cfg.Horizons, 4)

	h7, ok := cfg.Horizon(contracts.Horizon7)
	require.True(t, ok)
	assert.Equal(t, VariantGJR, h7.Volatility)
	assert.InDelta(t, 0.7, h7.Weights[contracts.ModelTree], 1e-12)

	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	// 동일 설정 → 동일 해시
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2)
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Empty(t, Warn(cfg))
}

func TestBlendWeightsSumToOne(t *testing.T) {
	cfg := Default()
	for h, w := range cfg.BlendTable() {
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "horizon %s", h)
	}
	// 단기일수록 트리 비중 큼
	table := cfg.BlendTable()
	assert.Greater(t, table[contracts.Horizon7][contracts.ModelTree], table[contracts.Horizon90][contracts.ModelTree])
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{
			name:   "weights do not sum to one",
			mutate: func(c *Config) { c.Horizons[0].Weights[contracts.ModelTree] = 0.8 },
			field:  "horizons[0].weights",
		},
		{
			name:   "missing seasonal weight",
			mutate: func(c *Config) { delete(c.Horizons[1].Weights, contracts.ModelSeasonal) },
			field:  "horizons[1].weights",
		},
		{
			name:   "unsupported horizon",
			mutate: func(c *Config) { c.Horizons[2].Days = 14 },
			field:  "horizons[2].days",
		},
		{
			name:   "unknown volatility variant",
			mutate: func(c *Config) { c.Horizons[3].Volatility = "egarch" },
			field:  "horizons[3].volatility",
		},
		{
			name:   "null density above five percent",
			mutate: func(c *Config) { c.Features.MaxNullDensity = 0.1 },
			field:  "features.max_null_density",
		},
		{
			name:   "keep one artifact",
			mutate: func(c *Config) { c.Artifacts.Keep = 1 },
			field:  "artifacts.keep",
		},
		{
			name:   "levels out of order",
			mutate: func(c *Config) { c.Readiness.Levels.Ready = 95 },
			field:  "readiness.levels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, contracts.ErrConfiguration)
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("meta:\n  config_id: x\n  colour: red\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
	assert.True(t, strings.Contains(err.Error(), "colour"))
}
