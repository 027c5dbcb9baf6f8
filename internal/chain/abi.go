package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const vaultABIJSON = `[
	{"inputs":[{"components":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"flashAmounts","type":"tuple[]"},{"components":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"flashExecute","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	abiOnce  sync.Once
	erc20ABI abi.ABI
	vaultABI abi.ABI
)

func loadABIs() {
	abiOnce.Do(func() {
		erc20ABI = mustParseABI(erc20ABIJSON)
		vaultABI = mustParseABI(vaultABIJSON)
	})
}

// ERC20ABI returns the parsed ERC20 subset used by the maker.
func ERC20ABI() abi.ABI {
	loadABIs()
	return erc20ABI
}

// VaultABI returns the parsed maker vault ABI.
func VaultABI() abi.ABI {
	loadABIs()
	return vaultABI
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: parse abi: " + err.Error())
	}
	return parsed
}
