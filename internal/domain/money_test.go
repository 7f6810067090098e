package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("1234.56")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(1234.56).Equal(d))

	_, err = ParseAmount("not-a-number")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = ParseAmount("10.005")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCheckGranularity(t *testing.T) {
	assert.NoError(t, CheckGranularity(decimal.NewFromInt(100)))
	assert.NoError(t, CheckGranularity(decimal.RequireFromString("0.99")))
	assert.NoError(t, CheckGranularity(decimal.RequireFromString("-42.10")))

	err := CheckGranularity(decimal.RequireFromString("0.001"))
	assert.True(t, IsValidation(err))
}

func TestRenderAmount(t *testing.T) {
	assert.Equal(t, "5.00", RenderAmount(decimal.NewFromInt(5)))
	assert.Equal(t, "199.35", RenderAmount(decimal.RequireFromString("199.35")))
	assert.Equal(t, "0.10", RenderAmount(decimal.RequireFromString("0.1")))
}
