package utils_test

import (
	"encoding/json"
	"testing"

	"catalog-reconciler/core/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt(t *testing.T) {
	assert.Equal(t, 42, utils.ToInt("42"))
	assert.Equal(t, 42, utils.ToInt(int64(42)))
	assert.Equal(t, 3, utils.ToInt(3.9))
	assert.Equal(t, 7, utils.ToInt([]byte("7")))
	assert.Equal(t, 0, utils.ToInt("nope"))
}

func TestToBool(t *testing.T) {
	assert.True(t, utils.ToBool("true"))
	assert.True(t, utils.ToBool("TRUE"))
	assert.True(t, utils.ToBool("1"))
	assert.True(t, utils.ToBool(1))
	assert.False(t, utils.ToBool(""))
	assert.False(t, utils.ToBool(nil))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "VF", utils.ToString("VF"))
	assert.Equal(t, "12", utils.ToString(12))
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"String", " 3.41 ", "3.41"},
		{"JSONNumber", json.Number("0.10"), "0.1"},
		{"Float", 3.41, "3.41"},
		{"Int", 12, "12"},
		{"Decimal", decimal.RequireFromString("1.5"), "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := utils.ToDecimal(tt.in)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}

	_, err := utils.ToDecimal("heavy")
	assert.Error(t, err)
	_, err = utils.ToDecimal(true)
	assert.Error(t, err)
}
