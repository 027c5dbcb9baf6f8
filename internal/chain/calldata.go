package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// vaultCall mirrors the vault's (address to, uint256 value, bytes data) tuple.
type vaultCall struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// vaultFlashAmount mirrors the vault's (address token, uint256 amount) tuple.
type vaultFlashAmount struct {
	Token  common.Address
	Amount *big.Int
}

// EncodeApprove returns calldata for ERC20 approve(spender, amount).
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI().Pack("approve", spender, nonNil(amount))
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}

// ApproveCall returns the approve call on token as a domain.Call.
func ApproveCall(token, spender common.Address, amount *big.Int) (domain.Call, error) {
	data, err := EncodeApprove(spender, amount)
	if err != nil {
		return domain.Call{}, err
	}
	return domain.Call{To: token, Value: new(big.Int), Data: data}, nil
}

// EncodeExecute returns calldata for vault execute(calls).
func EncodeExecute(calls []domain.Call) ([]byte, error) {
	data, err := VaultABI().Pack("execute", toVaultCalls(calls))
	if err != nil {
		return nil, fmt.Errorf("chain: pack execute: %w", err)
	}
	return data, nil
}

// EncodeFlashExecute returns calldata for vault flashExecute(flashAmounts, calls).
func EncodeFlashExecute(flash []domain.FlashAmount, calls []domain.Call) ([]byte, error) {
	amounts := make([]vaultFlashAmount, len(flash))
	for i, f := range flash {
		amounts[i] = vaultFlashAmount{Token: f.Token, Amount: nonNil(f.Amount)}
	}
	data, err := VaultABI().Pack("flashExecute", amounts, toVaultCalls(calls))
	if err != nil {
		return nil, fmt.Errorf("chain: pack flashExecute: %w", err)
	}
	return data, nil
}

// TotalValue sums the native value attached to calls.
func TotalValue(calls []domain.Call) *big.Int {
	total := new(big.Int)
	for _, c := range calls {
		if c.Value != nil {
			total.Add(total, c.Value)
		}
	}
	return total
}

func toVaultCalls(calls []domain.Call) []vaultCall {
	out := make([]vaultCall, len(calls))
	for i, c := range calls {
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		out[i] = vaultCall{To: c.To, Value: nonNil(c.Value), Data: data}
	}
	return out
}

func nonNil(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
