// Package sdk is the single entry point for trading agent tokens and
// querying the listing API. Everything it needs is passed in through a
// Config; there is no process-wide state.
package sdk

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"

	"vp-trade/config"
	"vp-trade/pkg/client"
	"vp-trade/pkg/evm"
	"vp-trade/pkg/solswap"
	"vp-trade/pkg/trade"
	"vp-trade/pkg/types"
	"vp-trade/pkg/venue"
)

// Client bundles one account, both venues and the listing API
type Client struct {
	cfg          *config.Config
	account      *evm.Account
	prototype    *venue.BondingCurve
	sentient     *venue.RouterSwap
	orchestrator *trade.Orchestrator
	api          *client.VirtualsClient
	solana       *solswap.Executor
}

// NewClient validates cfg, dials the RPC endpoint and wires the client
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ethClient, err := evm.Dial(ctx, cfg.EVMEndpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if cfg.ChainID != 0 {
		chainID, err := ethClient.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		if chainID.Int64() != cfg.ChainID {
			return nil, fmt.Errorf("%w: rpc is on chain %s, expected %d", types.ErrConfiguration, chainID, cfg.ChainID)
		}
	}
	return New(cfg, ethClient)
}

// New wires a client around an existing backend. A nil backend yields a
// client whose network operations fail with ErrNoProvider.
func New(cfg *config.Config, backend evm.Backend) (*Client, error) {
	account, err := evm.NewAccount(cfg.PrivateKey, backend,
		evm.WithReceiptTimeout(cfg.ReceiptTimeout),
		evm.WithReceiptPollInterval(cfg.ReceiptPollInterval),
	)
	if err != nil {
		return nil, err
	}

	estimator := evm.NewFeeEstimator(backend)
	ledger := evm.NewAllowanceLedger(account, estimator)

	prototype := venue.NewBondingCurve(venue.BondingCurveConfig{
		BaseToken:    cfg.Contracts.BaseToken,
		Router:       cfg.Contracts.FRouter,
		BondingCurve: cfg.Contracts.BondingCurve,
		TaxRate:      cfg.Contracts.TaxRate,
	}, account, estimator, ledger)
	sentient := venue.NewRouterSwap(cfg.Contracts.UniswapV2Router, account, estimator, ledger)

	c := &Client{
		cfg:          cfg,
		account:      account,
		prototype:    prototype,
		sentient:     sentient,
		orchestrator: trade.NewOrchestrator(account, cfg.Contracts.BaseToken, prototype, sentient),
		api:          client.NewVirtualsClient(cfg.APIURL, cfg.APIURLV2),
	}

	if cfg.Solana.PrivateKey != "" {
		c.solana, err = NewSolanaExecutor(cfg)
		if err != nil {
			return nil, err
		}
	}

	log.WithField("address", account.Address().Hex()).Debug("sdk client ready")
	return c, nil
}

// NewSolanaExecutor wires a Jupiter swap executor from the solana settings
func NewSolanaExecutor(cfg *config.Config) (*solswap.Executor, error) {
	key, err := solswap.ParsePrivateKey(cfg.Solana.PrivateKey)
	if err != nil {
		return nil, err
	}
	return solswap.NewExecutor(
		rpc.New(cfg.SolanaEndpoint()),
		solswap.NewJupiterClient(cfg.Solana.JupiterURL, cfg.Solana.JupiterAPIKey),
		key,
		solswap.WithConfirmTimeout(cfg.Solana.ConfirmTimeout),
	), nil
}

// Address returns the trading account address
func (c *Client) Address() common.Address {
	return c.account.Address()
}

// SignMessage returns the 0x-prefixed personal-sign signature of message
func (c *Client) SignMessage(message string) (string, error) {
	sig, err := c.account.SignMessage([]byte(message))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// TransactionStatus returns the receipt of txHash, or nil while it is pending
func (c *Client) TransactionStatus(ctx context.Context, txHash common.Hash) (*evm.Receipt, error) {
	return c.account.TransactionStatus(ctx, txHash)
}

// Orchestrator exposes the underlying trade pipeline
func (c *Client) Orchestrator() *trade.Orchestrator {
	return c.orchestrator
}

// BuySentientTokens swaps amount of the base asset into token
func (c *Client) BuySentientTokens(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.Receipt, error) {
	return c.execute(ctx, types.Buy, types.Sentient, token, amount, opt)
}

// SellSentientTokens swaps amount of token into the base asset
func (c *Client) SellSentientTokens(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.Receipt, error) {
	return c.execute(ctx, types.Sell, types.Sentient, token, amount, opt)
}

// BuyPrototypeTokens buys token on the bonding curve with amount of the base asset
func (c *Client) BuyPrototypeTokens(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.Receipt, error) {
	return c.execute(ctx, types.Buy, types.Prototype, token, amount, opt)
}

// SellPrototypeTokens sells amount of token to the bonding curve
func (c *Client) SellPrototypeTokens(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.Receipt, error) {
	return c.execute(ctx, types.Sell, types.Prototype, token, amount, opt)
}

// Trade executes intent with configured defaults. With autoApprove the
// spent token is approved first when the allowance falls short.
func (c *Client) Trade(ctx context.Context, intent *types.TradeIntent, autoApprove bool) (*evm.Receipt, error) {
	prepared := *intent
	prepared.Option = c.withDefaults(&intent.Option)
	if autoApprove {
		return c.orchestrator.Trade(ctx, &prepared)
	}
	return c.orchestrator.Execute(ctx, &prepared)
}

// CheckSentientAllowance reports whether the router may spend amount of
// fromToken. The zero address means the base asset.
func (c *Client) CheckSentientAllowance(ctx context.Context, amount string, fromToken common.Address) (bool, error) {
	return c.sentient.CheckAllowance(ctx, amount, c.fromToken(fromToken))
}

// ApproveSentientAllowance approves the router for exactly amount of fromToken
func (c *Client) ApproveSentientAllowance(ctx context.Context, amount string, fromToken common.Address) (common.Hash, error) {
	return c.sentient.ApproveAllowance(ctx, amount, c.fromToken(fromToken))
}

// CheckPrototypeAllowance reports whether the bonding router may spend amount of fromToken
func (c *Client) CheckPrototypeAllowance(ctx context.Context, amount string, fromToken common.Address) (bool, error) {
	return c.prototype.CheckAllowance(ctx, amount, c.fromToken(fromToken))
}

// ApprovePrototypeAllowance approves the bonding router for exactly amount of fromToken
func (c *Client) ApprovePrototypeAllowance(ctx context.Context, amount string, fromToken common.Address) (common.Hash, error) {
	return c.prototype.ApproveAllowance(ctx, amount, c.fromToken(fromToken))
}

// GetSentientListing lists sentient tokens by total value locked
func (c *Client) GetSentientListing(ctx context.Context, page, pageSize int, chain client.AgentChain) (*client.TokenList, error) {
	return c.api.FetchTokenList(ctx, types.Sentient, chain, page, pageSize)
}

// GetPrototypeListing lists prototype tokens by virtual token value
func (c *Client) GetPrototypeListing(ctx context.Context, page, pageSize int, chain client.AgentChain) (*client.TokenList, error) {
	return c.api.FetchTokenList(ctx, types.Prototype, chain, page, pageSize)
}

// SearchVirtualTokensByKeyword returns the best match for a name, symbol or address
func (c *Client) SearchVirtualTokensByKeyword(ctx context.Context, keyword string) (*client.Token, error) {
	return c.api.SearchToken(ctx, keyword)
}

// FetchKlines returns price candles of a token
func (c *Client) FetchKlines(ctx context.Context, params client.KlinesParams) ([]client.Kline, error) {
	return c.api.FetchKlines(ctx, params)
}

// FetchLatestTrades returns the latest trades of a token
func (c *Client) FetchLatestTrades(ctx context.Context, params client.TradesParams) ([]client.Trade, error) {
	return c.api.FetchLatestTrades(ctx, params)
}

// SolanaAddress returns the configured Solana wallet, if any
func (c *Client) SolanaAddress() (string, error) {
	if c.solana == nil {
		return "", fmt.Errorf("%w: solana private key is not configured", types.ErrConfiguration)
	}
	return c.solana.PublicKey().String(), nil
}

// SolanaSwap runs a Jupiter swap and returns the finalized signature
func (c *Client) SolanaSwap(ctx context.Context, swap solswap.SwapConfig) (string, error) {
	if c.solana == nil {
		return "", fmt.Errorf("%w: solana private key is not configured", types.ErrConfiguration)
	}
	sig, err := c.solana.Swap(ctx, swap)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (c *Client) execute(ctx context.Context, side types.Side, v types.Venue, token common.Address, amount string, opt *types.Option) (*evm.Receipt, error) {
	intent := &types.TradeIntent{
		Side:         side,
		Venue:        v,
		CounterToken: token,
		Amount:       amount,
		Option:       c.withDefaults(opt),
	}
	return c.orchestrator.Execute(ctx, intent)
}

// withDefaults fills unset option fields from the configuration
func (c *Client) withDefaults(opt *types.Option) types.Option {
	var out types.Option
	if opt != nil {
		out = *opt
	}
	if out.BuilderID == nil && c.cfg.BuilderID != 0 {
		id := c.cfg.BuilderID
		out.BuilderID = &id
	}
	if out.Slippage == nil {
		slippage := c.cfg.DefaultSlippage
		out.Slippage = &slippage
	}
	return out
}

func (c *Client) fromToken(token common.Address) common.Address {
	if token == (common.Address{}) {
		return c.cfg.Contracts.BaseToken
	}
	return token
}
