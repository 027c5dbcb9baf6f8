package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/quoter"
)

// GasPriceSource supplies the current gas price in wei.
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasPricer prices settlement gas in units of an arbitrary token by quoting
// the wrapped native token against it.
type GasPricer struct {
	prices  GasPriceSource
	quoter  quoter.Quoter
	native  common.Address
	chainID uint32
}

// NewGasPricer creates a GasPricer. native is the wrapped native token the
// quoter can price.
func NewGasPricer(prices GasPriceSource, q quoter.Quoter, native common.Address, chainID uint32) *GasPricer {
	return &GasPricer{prices: prices, quoter: q, native: native, chainID: chainID}
}

// GasCostInToken returns the cost of gasUnits at the current gas price,
// expressed in base units of token.
func (g *GasPricer) GasCostInToken(ctx context.Context, token common.Address, gasUnits uint64) (*big.Int, error) {
	price, err := g.prices.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas pricer: %w", err)
	}
	weiCost := new(big.Int).Mul(price, new(big.Int).SetUint64(gasUnits))
	if weiCost.Sign() == 0 || token == g.native {
		return weiCost, nil
	}
	if g.native == (common.Address{}) {
		return nil, errors.New("gas pricer: native token not configured")
	}

	q, err := g.quoter.GetOutputAmountQuote(ctx, domain.QuoteRequest{
		InputToken:  g.native,
		OutputToken: token,
		InputAmount: weiCost,
		ChainID:     g.chainID,
	})
	if err != nil {
		return nil, fmt.Errorf("gas pricer: convert %s wei: %w", weiCost, err)
	}
	if q.OutputAmount == nil {
		return nil, errors.New("gas pricer: empty conversion quote")
	}
	return q.OutputAmount, nil
}
