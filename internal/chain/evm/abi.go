package evm

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}
  ], "name": "Transfer", "type": "event"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

// launchpadABIJSON is the bonding contract's launch event.
const launchpadABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "token", "type": "address"},
    {"indexed": true, "name": "pair", "type": "address"},
    {"indexed": false, "name": "supply", "type": "uint256"}
  ], "name": "Launched", "type": "event"}
]`

var (
	erc20ABI        abi.ABI
	erc20ABIOnce    sync.Once
	erc20ABIErr     error
	erc20Bytes32ABI abi.ABI
	erc20B32Once    sync.Once
	erc20B32Err     error
	launchpadABI    abi.ABI
	launchpadOnce   sync.Once
	launchpadErr    error
)

func erc20Instance() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABI, erc20ABIErr
}

func erc20Bytes32Instance() (abi.ABI, error) {
	erc20B32Once.Do(func() {
		erc20Bytes32ABI, erc20B32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20Bytes32ABI, erc20B32Err
}

// LaunchpadABI returns the parsed launchpad event ABI.
func LaunchpadABI() (abi.ABI, error) {
	launchpadOnce.Do(func() {
		launchpadABI, launchpadErr = abi.JSON(strings.NewReader(launchpadABIJSON))
	})
	return launchpadABI, launchpadErr
}
