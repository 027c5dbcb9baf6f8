package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashAmountEncodesAsDecimalString(t *testing.T) {
	huge, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	rec := PendingExecution{
		OrderHash:    common.HexToHash("0x01"),
		FlashAmounts: []FlashAmount{{Token: common.HexToAddress("0xaa"), Amount: huge}},
		State:        ExecutionPending,
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var wire struct {
		FlashAmounts []map[string]any `json:"flashAmounts"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Len(t, wire.FlashAmounts, 1)
	assert.Equal(t, "1000000000000000000000000000000", wire.FlashAmounts[0]["amount"])

	var back PendingExecution
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back.FlashAmounts, 1)
	assert.Equal(t, common.HexToAddress("0xaa"), back.FlashAmounts[0].Token)
	assert.Equal(t, 0, back.FlashAmounts[0].Amount.Cmp(huge))
}

func TestFlashAmountRejectsBadAmount(t *testing.T) {
	var f FlashAmount
	err := json.Unmarshal([]byte(`{"token":"0x00000000000000000000000000000000000000aa","amount":"-1"}`), &f)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	err = json.Unmarshal([]byte(`{"token":"0x00000000000000000000000000000000000000aa","amount":12}`), &f)
	assert.Error(t, err)
}
