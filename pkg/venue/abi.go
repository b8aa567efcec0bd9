package venue

import "vp-trade/pkg/evm"

// BondingABI is the bonding curve execution contract
const BondingABI = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address","name":"tokenAddress","type":"address"}],"name":"buy","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address","name":"tokenAddress","type":"address"}],"name":"sell","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// FRouterABI is the bonding curve router used as the quote source
const FRouterABI = `[
	{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"address","name":"assetToken_","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256","name":"_amountOut","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// UniswapV2RouterABI covers quoting and fee-on-transfer safe swaps
const UniswapV2RouterABI = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	Bonding         = evm.MustParseABI(BondingABI)
	FRouter         = evm.MustParseABI(FRouterABI)
	UniswapV2Router = evm.MustParseABI(UniswapV2RouterABI)
)

const swapMethod = "swapExactTokensForTokensSupportingFeeOnTransferTokens"
