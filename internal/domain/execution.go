package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is a single contract invocation.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

type callJSON struct {
	To    common.Address `json:"to"`
	Value string         `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(callJSON{To: c.To, Value: FormatAmount(c.Value), Data: c.Data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Call) UnmarshalJSON(data []byte) error {
	var w callJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := ParseAmount(w.Value)
	if err != nil {
		return fmt.Errorf("call: value: %w", err)
	}
	*c = Call{To: w.To, Value: v, Data: w.Data}
	return nil
}

// FlashAmount is a token amount borrowed for the duration of a vault
// flashExecute call.
type FlashAmount struct {
	Token  common.Address
	Amount *big.Int
}

type flashAmountJSON struct {
	Token  common.Address `json:"token"`
	Amount string         `json:"amount"`
}

// MarshalJSON implements json.Marshaler.
func (f FlashAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(flashAmountJSON{Token: f.Token, Amount: FormatAmount(f.Amount)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlashAmount) UnmarshalJSON(data []byte) error {
	var w flashAmountJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	amt, err := ParseAmount(w.Amount)
	if err != nil {
		return fmt.Errorf("flash amount: %w", err)
	}
	*f = FlashAmount{Token: w.Token, Amount: amt}
	return nil
}

// ExecutionState is the lifecycle position of a pending execution.
type ExecutionState string

const (
	ExecutionPending   ExecutionState = "pending"
	ExecutionExecuting ExecutionState = "executing"
	ExecutionSettled   ExecutionState = "settled"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionExpired   ExecutionState = "expired"
)

// PendingExecution is the staged settlement plan for one signed order.
type PendingExecution struct {
	OrderHash    OrderHash      `json:"orderHash"`
	ChainID      uint32         `json:"chainId"`
	PreCalldata  []Call         `json:"preCalldata"`
	PostCalldata []Call         `json:"postCalldata"`
	FlashAmounts []FlashAmount  `json:"flashAmounts,omitempty"`
	State        ExecutionState `json:"state"`
	Attempts     int            `json:"attempts"`
	LastError    string         `json:"lastError,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`

	// Fill is the last fill notification applied to this record. It is kept
	// on failure so an operator retry can replay the same settlement call.
	Fill *DetailsToExecute `json:"fill,omitempty"`
}

// DetailsToExecute is the fill notification payload: the backend has matched
// MakerOrderHash with TakerOrderHash and assembled the settlement call.
type DetailsToExecute struct {
	MakerOrderHash OrderHash
	TakerOrderHash OrderHash
	ChainID        uint32
	To             common.Address
	Value          *big.Int
	Data           []byte
}

type detailsJSON struct {
	MakerOrderHash OrderHash      `json:"makerOrderHash"`
	TakerOrderHash OrderHash      `json:"takerOrderHash"`
	ChainID        uint32         `json:"chainId"`
	To             common.Address `json:"to"`
	Value          string         `json:"value"`
	Data           hexutil.Bytes  `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (d DetailsToExecute) MarshalJSON() ([]byte, error) {
	return json.Marshal(detailsJSON{
		MakerOrderHash: d.MakerOrderHash,
		TakerOrderHash: d.TakerOrderHash,
		ChainID:        d.ChainID,
		To:             d.To,
		Value:          FormatAmount(d.Value),
		Data:           d.Data,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DetailsToExecute) UnmarshalJSON(data []byte) error {
	var w detailsJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := ParseAmount(w.Value)
	if err != nil {
		return fmt.Errorf("details to execute: value: %w", err)
	}
	*d = DetailsToExecute{
		MakerOrderHash: w.MakerOrderHash,
		TakerOrderHash: w.TakerOrderHash,
		ChainID:        w.ChainID,
		To:             w.To,
		Value:          v,
		Data:           w.Data,
	}
	return nil
}

// FillCall is the settlement call the backend assembled for the matched pair.
func (d DetailsToExecute) FillCall() Call {
	return Call{To: d.To, Value: d.Value, Data: d.Data}
}
