package pipeline

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceReader reads on-chain ERC20 allowances.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

// AllowanceCache remembers allowances known to be in place for the maker
// wallet. It is advisory: a stale entry can only cause a redundant approval.
type AllowanceCache struct {
	owner  common.Address
	reader AllowanceReader

	mu    sync.Mutex
	known map[allowanceKey]*big.Int
}

// NewAllowanceCache creates a cache for owner. reader may be nil, in which
// case only approvals recorded with Record are known.
func NewAllowanceCache(owner common.Address, reader AllowanceReader) *AllowanceCache {
	return &AllowanceCache{
		owner:  owner,
		reader: reader,
		known:  make(map[allowanceKey]*big.Int),
	}
}

// Sufficient reports whether owner has approved at least amount of token to
// spender. On a cache miss it consults the chain when a reader is set; read
// errors count as insufficient.
func (c *AllowanceCache) Sufficient(ctx context.Context, token, spender common.Address, amount *big.Int) bool {
	key := allowanceKey{token: token, spender: spender}

	c.mu.Lock()
	cached, ok := c.known[key]
	c.mu.Unlock()
	if ok && cached.Cmp(amount) >= 0 {
		return true
	}
	if c.reader == nil {
		return false
	}

	onChain, err := c.reader.Allowance(ctx, token, c.owner, spender)
	if err != nil || onChain == nil {
		return false
	}
	c.Record(token, spender, onChain)
	return onChain.Cmp(amount) >= 0
}

// Record notes that owner's allowance of token for spender is amount.
func (c *AllowanceCache) Record(token, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[allowanceKey{token: token, spender: spender}] = new(big.Int).Set(amount)
}
