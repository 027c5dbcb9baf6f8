package domain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// QuoteRequest asks what OutputToken amount InputAmount of InputToken buys on
// ChainID. OutputAmount, when set, is the minimum the taker will accept.
type QuoteRequest struct {
	InputToken   common.Address
	OutputToken  common.Address
	InputAmount  *big.Int
	OutputAmount *big.Int
	ChainID      uint32
	FromAddress  common.Address
}

type quoteRequestJSON struct {
	InputToken   common.Address `json:"inputToken"`
	OutputToken  common.Address `json:"outputToken"`
	InputAmount  string         `json:"inputAmount"`
	OutputAmount string         `json:"outputAmount,omitempty"`
	ChainID      uint32         `json:"chainId"`
	FromAddress  common.Address `json:"fromAddress"`
}

// MarshalJSON implements json.Marshaler.
func (r QuoteRequest) MarshalJSON() ([]byte, error) {
	w := quoteRequestJSON{
		InputToken:  r.InputToken,
		OutputToken: r.OutputToken,
		InputAmount: FormatAmount(r.InputAmount),
		ChainID:     r.ChainID,
		FromAddress: r.FromAddress,
	}
	if r.OutputAmount != nil {
		w.OutputAmount = r.OutputAmount.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *QuoteRequest) UnmarshalJSON(data []byte) error {
	var w quoteRequestJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	in, err := ParseAmount(w.InputAmount)
	if err != nil {
		return fmt.Errorf("quote request: inputAmount: %w", err)
	}
	var out *big.Int
	if w.OutputAmount != "" {
		if out, err = ParseAmount(w.OutputAmount); err != nil {
			return fmt.Errorf("quote request: outputAmount: %w", err)
		}
	}
	*r = QuoteRequest{
		InputToken:   w.InputToken,
		OutputToken:  w.OutputToken,
		InputAmount:  in,
		OutputAmount: out,
		ChainID:      w.ChainID,
		FromAddress:  w.FromAddress,
	}
	return nil
}

// Quote is a pricing source's answer. To/Value/Data, when To is set, describe
// a call that realizes the trade on-chain.
type Quote struct {
	OutputAmount *big.Int
	Price        decimal.Decimal // informational, zero if unknown
	Gas          uint64
	To           *common.Address
	Value        *big.Int
	Data         []byte
}

// HasCall reports whether the quote carries an execution target.
func (q Quote) HasCall() bool {
	return q.To != nil && *q.To != (common.Address{})
}
