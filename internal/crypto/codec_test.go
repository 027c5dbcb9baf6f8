package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testOrder() domain.Order {
	return domain.Order{
		Offerer:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		InputToken:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		InputAmount:  big.NewInt(1_980_000),
		OutputToken:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		OutputAmount: big.NewInt(1_000_000),
		Recipient:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Zone:         big.NewInt(0),
		ChainID:      1,
		StartTime:    1_700_000_000,
		EndTime:      1_700_000_300,
		Counter:      big.NewInt(0),
		Salt:         big.NewInt(42),
	}
}

func TestOrderHashDeterministic(t *testing.T) {
	var codec OrderCodec

	a := testOrder()
	// Same values, built independently.
	b := domain.Order{
		Salt:         big.NewInt(42),
		Counter:      big.NewInt(0),
		EndTime:      1_700_000_300,
		StartTime:    1_700_000_000,
		ChainID:      1,
		Zone:         new(big.Int),
		Recipient:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		OutputAmount: new(big.Int).SetUint64(1_000_000),
		OutputToken:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		InputAmount:  new(big.Int).SetUint64(1_980_000),
		InputToken:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Offerer:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}

	h1, err := codec.Hash(a)
	require.NoError(t, err)
	h2, err := codec.Hash(a)
	require.NoError(t, err)
	h3, err := codec.Hash(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)
}

func TestOrderHashChangesWithEveryField(t *testing.T) {
	var codec OrderCodec
	base, err := codec.Hash(testOrder())
	require.NoError(t, err)

	mutations := map[string]func(o *domain.Order){
		"salt":         func(o *domain.Order) { o.Salt = big.NewInt(43) },
		"counter":      func(o *domain.Order) { o.Counter = big.NewInt(1) },
		"offerer":      func(o *domain.Order) { o.Offerer = common.HexToAddress("0x4444444444444444444444444444444444444444") },
		"inputAmount":  func(o *domain.Order) { o.InputAmount = big.NewInt(1_980_001) },
		"outputAmount": func(o *domain.Order) { o.OutputAmount = big.NewInt(999_999) },
		"zone":         func(o *domain.Order) { o.Zone = big.NewInt(7) },
		"chainId":      func(o *domain.Order) { o.ChainID = 10 },
		"endTime":      func(o *domain.Order) { o.EndTime++ },
		"toWithdraw":   func(o *domain.Order) { o.ToWithdraw = true },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o := testOrder()
			mutate(&o)
			h, err := codec.Hash(o)
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestOrderHashRejectsOutOfRangeFields(t *testing.T) {
	var codec OrderCodec

	o := testOrder()
	o.InputAmount = big.NewInt(-1)
	_, err := codec.Hash(o)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	o = testOrder()
	o.Zone = new(big.Int).Lsh(big.NewInt(1), 160)
	_, err = codec.Hash(o)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestSignAndVerifyOrder(t *testing.T) {
	var codec OrderCodec
	signer, err := NewSigner("0x" + testKey)
	require.NoError(t, err)

	o := testOrder()
	o.Offerer = signer.Address()

	signed, err := codec.Sign(signer, o)
	require.NoError(t, err)
	require.Len(t, signed.Signature, 65)
	assert.Contains(t, []byte{27, 28}, signed.Signature[64])

	want, err := codec.Hash(o)
	require.NoError(t, err)
	assert.Equal(t, want, signed.Hash)

	got, err := codec.Verify(o, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)

	// A different order recovers a different address.
	o.Salt = big.NewInt(1)
	other, err := codec.Verify(o, signed.Signature)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), other)
}

func TestRecoverMessageSignerRejectsShortSignature(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("x"), make([]byte, 64))
	assert.Error(t, err)
}
