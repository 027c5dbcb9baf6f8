package domain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// Order is an intent to give InputAmount of InputToken in exchange for
// OutputAmount of OutputToken on ChainID, valid between StartTime and EndTime.
// An order is immutable once hashed: changing any field changes its identity.
type Order struct {
	Offerer      common.Address
	InputToken   common.Address
	InputAmount  *big.Int
	OutputToken  common.Address
	OutputAmount *big.Int
	Recipient    common.Address
	Zone         *big.Int // uint160
	ChainID      uint32
	StartTime    uint32
	EndTime      uint32
	ToWithdraw   bool
	Counter      *big.Int
	Salt         *big.Int
}

// OrderHash is the canonical identity of an order.
type OrderHash = common.Hash

// SignedOrder is an order together with its hash and the offerer's signature.
type SignedOrder struct {
	Order     Order
	Hash      OrderHash
	Signature []byte
}

// orderJSON is the wire form of Order. Amounts travel as decimal strings.
type orderJSON struct {
	Offerer      common.Address `json:"offerer"`
	InputToken   common.Address `json:"inputToken"`
	InputAmount  string         `json:"inputAmount"`
	OutputToken  common.Address `json:"outputToken"`
	OutputAmount string         `json:"outputAmount"`
	Recipient    common.Address `json:"recipient"`
	Zone         string         `json:"zone"`
	ChainID      uint32         `json:"chainId"`
	StartTime    uint32         `json:"startTime"`
	EndTime      uint32         `json:"endTime"`
	ToWithdraw   bool           `json:"toWithdraw"`
	Counter      string         `json:"counter"`
	Salt         string         `json:"salt"`
}

// MarshalJSON implements json.Marshaler.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		Offerer:      o.Offerer,
		InputToken:   o.InputToken,
		InputAmount:  FormatAmount(o.InputAmount),
		OutputToken:  o.OutputToken,
		OutputAmount: FormatAmount(o.OutputAmount),
		Recipient:    o.Recipient,
		Zone:         FormatAmount(o.Zone),
		ChainID:      o.ChainID,
		StartTime:    o.StartTime,
		EndTime:      o.EndTime,
		ToWithdraw:   o.ToWithdraw,
		Counter:      FormatAmount(o.Counter),
		Salt:         FormatAmount(o.Salt),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Order) UnmarshalJSON(data []byte) error {
	var w orderJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Order{
		Offerer:     w.Offerer,
		InputToken:  w.InputToken,
		OutputToken: w.OutputToken,
		Recipient:   w.Recipient,
		ChainID:     w.ChainID,
		StartTime:   w.StartTime,
		EndTime:     w.EndTime,
		ToWithdraw:  w.ToWithdraw,
	}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"inputAmount", w.InputAmount, &out.InputAmount},
		{"outputAmount", w.OutputAmount, &out.OutputAmount},
		{"zone", w.Zone, &out.Zone},
		{"counter", w.Counter, &out.Counter},
		{"salt", w.Salt, &out.Salt},
	}
	for _, f := range fields {
		v, err := ParseAmount(f.raw)
		if err != nil {
			return fmt.Errorf("order: %s: %w", f.name, err)
		}
		*f.dst = v
	}
	*o = out
	return nil
}

type signedOrderJSON struct {
	Order     Order         `json:"order"`
	Hash      OrderHash     `json:"orderHash"`
	Signature hexutil.Bytes `json:"signature"`
}

// MarshalJSON implements json.Marshaler.
func (s SignedOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedOrderJSON{Order: s.Order, Hash: s.Hash, Signature: s.Signature})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SignedOrder) UnmarshalJSON(data []byte) error {
	var w signedOrderJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Order, s.Hash, s.Signature = w.Order, w.Hash, w.Signature
	return nil
}

// FormatAmount renders n as a base-10 string. A nil amount renders as "0".
func FormatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// ParseAmount parses a decimal (or 0x-prefixed hex) unsigned integer of at
// most 256 bits. An empty string parses as zero.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidOrder, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidOrder, s)
	}
	return v, nil
}
