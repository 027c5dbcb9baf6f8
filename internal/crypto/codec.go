package crypto

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// MessageSigner produces personal-message signatures for an address.
type MessageSigner interface {
	SignMessage(msg []byte) ([]byte, error)
	Address() common.Address
}

// OrderCodec computes the canonical order hash and signs and verifies orders
// over it. The zero value is ready to use.
type OrderCodec struct{}

// Hash returns keccak256 of the tightly packed order fields:
//
//	offerer address, inputToken address, inputAmount uint256,
//	outputToken address, outputAmount uint256, recipient address,
//	zone uint160, chainId uint32, startTime uint32, endTime uint32,
//	toWithdraw bool, counter uint256, salt uint256
func (OrderCodec) Hash(o domain.Order) (domain.OrderHash, error) {
	packed, err := packOrder(o)
	if err != nil {
		return domain.OrderHash{}, err
	}
	return ethcrypto.Keccak256Hash(packed), nil
}

// Sign hashes o and signs the hash as a personal message.
func (c OrderCodec) Sign(signer MessageSigner, o domain.Order) (domain.SignedOrder, error) {
	h, err := c.Hash(o)
	if err != nil {
		return domain.SignedOrder{}, err
	}
	sig, err := signer.SignMessage(h.Bytes())
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return domain.SignedOrder{Order: o, Hash: h, Signature: sig}, nil
}

// Verify recovers the address that signed o. Comparing it with the offerer is
// up to the caller.
func (c OrderCodec) Verify(o domain.Order, sig []byte) (common.Address, error) {
	h, err := c.Hash(o)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverMessageSigner(h.Bytes(), sig)
}

func packOrder(o domain.Order) ([]byte, error) {
	inputAmount, err := fixedWidth("inputAmount", o.InputAmount, 32)
	if err != nil {
		return nil, err
	}
	outputAmount, err := fixedWidth("outputAmount", o.OutputAmount, 32)
	if err != nil {
		return nil, err
	}
	zone, err := fixedWidth("zone", o.Zone, 20)
	if err != nil {
		return nil, err
	}
	counter, err := fixedWidth("counter", o.Counter, 32)
	if err != nil {
		return nil, err
	}
	salt, err := fixedWidth("salt", o.Salt, 32)
	if err != nil {
		return nil, err
	}

	toWithdraw := []byte{0}
	if o.ToWithdraw {
		toWithdraw[0] = 1
	}

	return concatBytes(
		o.Offerer.Bytes(),
		o.InputToken.Bytes(),
		inputAmount,
		o.OutputToken.Bytes(),
		outputAmount,
		o.Recipient.Bytes(),
		zone,
		uint32Bytes(o.ChainID),
		uint32Bytes(o.StartTime),
		uint32Bytes(o.EndTime),
		toWithdraw,
		counter,
		salt,
	), nil
}

// fixedWidth left-pads a non-negative n to width bytes. A nil n packs as zero.
func fixedWidth(field string, n *big.Int, width int) ([]byte, error) {
	if n == nil {
		return make([]byte, width), nil
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("crypto/codec: %w: %s is negative", domain.ErrInvalidOrder, field)
	}
	if n.BitLen() > width*8 {
		return nil, fmt.Errorf("crypto/codec: %w: %s overflows %d bits", domain.ErrInvalidOrder, field, width*8)
	}
	return common.LeftPadBytes(n.Bytes(), width), nil
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
