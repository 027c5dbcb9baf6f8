package pipeline

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySpread(t *testing.T) {
	tests := []struct {
		amount int64
		bips   int
		want   int64
	}{
		{1000000, 50, 995000},
		{2000000, 100, 1980000},
		{1000000, 0, 1000000},
		{999, 1, 998}, // 999 × 9999 / 10000 = 998.9001, floored
		{1, 5000, 0},
		{1000000, 10000, 0},
	}
	for _, tt := range tests {
		got := ApplySpread(big.NewInt(tt.amount), tt.bips)
		assert.Equal(t, tt.want, got.Int64(), "amount=%d bips=%d", tt.amount, tt.bips)
	}
}

func TestApplySpreadDoesNotMutateInput(t *testing.T) {
	in := big.NewInt(1000000)
	_ = ApplySpread(in, 50)
	assert.Equal(t, int64(1000000), in.Int64())
}

func TestGasHaircut(t *testing.T) {
	assert.Equal(t, int64(200), gasHaircut(big.NewInt(2000000)).Int64())
	assert.Equal(t, int64(0), gasHaircut(big.NewInt(9999)).Int64())
}
