package stableswap

// PoolABI covers the Curve-style reads the adapter needs: per-index
// balances and token ordering.
const PoolABI = `[
	{
		"stateMutability": "view",
		"type": "function",
		"name": "balances",
		"inputs": [{"name": "i", "type": "uint256"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"stateMutability": "view",
		"type": "function",
		"name": "coins",
		"inputs": [{"name": "i", "type": "uint256"}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"stateMutability": "view",
		"type": "function",
		"name": "A",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`
