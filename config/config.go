package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"vp-trade/pkg/types"
)

const (
	EnvPrefix  = "VP_TRADE"
	configName = ".vp-trade"
)

// Base mainnet deployment
const (
	DefaultBaseToken       = "0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b"
	DefaultFRouter         = "0x8292B43aB73EfAC11FAF357419C38ACF448202C5"
	DefaultBondingCurve    = "0xF66DeA7b3e897cD44A5a231c61B6B4423d613259"
	DefaultUniswapV2Router = "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24"
	DefaultTaxRate         = "0.01"
)

// Config holds the application configuration
type Config struct {
	PrivateKey          string
	RPCURL              string
	RPCAPIKey           string
	APIURL              string
	APIURLV2            string
	ChainID             int64
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	LogLevel            string
	DefaultSlippage     uint16
	BuilderID           uint16
	Contracts           ContractsConfig
	Solana              SolanaConfig
}

// ContractsConfig holds the venue contract addresses
type ContractsConfig struct {
	BaseToken       common.Address
	FRouter         common.Address
	BondingCurve    common.Address
	UniswapV2Router common.Address
	TaxRate         decimal.Decimal
}

// SolanaConfig holds the Solana swap settings
type SolanaConfig struct {
	RPCURL         string
	RPCAPIKey      string
	PrivateKey     string
	JupiterURL     string
	JupiterAPIKey  string
	ConfirmTimeout time.Duration
}

// Load reads configuration from environment variables and an optional
// config file. An empty configFile searches $HOME and the working directory.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", types.ErrConfiguration, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("private_key", "")
	v.SetDefault("rpc_url", "")
	v.SetDefault("rpc_api_key", "")
	v.SetDefault("api_url", "https://api.virtuals.io")
	v.SetDefault("api_url_v2", "https://vp-api.virtuals.io")
	v.SetDefault("chain_id", 0)
	v.SetDefault("receipt_timeout", 3*time.Minute)
	v.SetDefault("receipt_poll_interval", 2*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("default_slippage", types.DefaultSlippagePercent)
	v.SetDefault("builder_id", 0)

	v.SetDefault("contracts.base_token", DefaultBaseToken)
	v.SetDefault("contracts.frouter", DefaultFRouter)
	v.SetDefault("contracts.bonding_curve", DefaultBondingCurve)
	v.SetDefault("contracts.uniswap_v2_router", DefaultUniswapV2Router)
	v.SetDefault("contracts.tax_rate", DefaultTaxRate)

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.rpc_api_key", "")
	v.SetDefault("solana.private_key", "")
	v.SetDefault("solana.jupiter_url", "https://api.jup.ag/swap/v1")
	v.SetDefault("solana.jupiter_api_key", "")
	v.SetDefault("solana.confirm_timeout", 90*time.Second)
}

func fromViper(v *viper.Viper) (*Config, error) {
	taxRate, err := decimal.NewFromString(v.GetString("contracts.tax_rate"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid contracts.tax_rate: %v", types.ErrConfiguration, err)
	}

	cfg := &Config{
		PrivateKey:          v.GetString("private_key"),
		RPCURL:              v.GetString("rpc_url"),
		RPCAPIKey:           v.GetString("rpc_api_key"),
		APIURL:              v.GetString("api_url"),
		APIURLV2:            v.GetString("api_url_v2"),
		ChainID:             v.GetInt64("chain_id"),
		ReceiptTimeout:      v.GetDuration("receipt_timeout"),
		ReceiptPollInterval: v.GetDuration("receipt_poll_interval"),
		LogLevel:            v.GetString("log_level"),
		DefaultSlippage:     uint16(v.GetUint("default_slippage")),
		BuilderID:           uint16(v.GetUint("builder_id")),
		Solana: SolanaConfig{
			RPCURL:         v.GetString("solana.rpc_url"),
			RPCAPIKey:      v.GetString("solana.rpc_api_key"),
			PrivateKey:     v.GetString("solana.private_key"),
			JupiterURL:     v.GetString("solana.jupiter_url"),
			JupiterAPIKey:  v.GetString("solana.jupiter_api_key"),
			ConfirmTimeout: v.GetDuration("solana.confirm_timeout"),
		},
	}

	contracts := map[string]*common.Address{
		"contracts.base_token":        &cfg.Contracts.BaseToken,
		"contracts.frouter":           &cfg.Contracts.FRouter,
		"contracts.bonding_curve":     &cfg.Contracts.BondingCurve,
		"contracts.uniswap_v2_router": &cfg.Contracts.UniswapV2Router,
	}
	for key, dst := range contracts {
		raw := v.GetString(key)
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%w: %s is not an address: %q", types.ErrConfiguration, key, raw)
		}
		*dst = common.HexToAddress(raw)
	}
	cfg.Contracts.TaxRate = taxRate

	return cfg, nil
}

// Validate checks the EVM trading settings before any network use
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return fmt.Errorf("%w: private key not found. Please set %s_PRIVATE_KEY or add private_key to %s.yaml", types.ErrConfiguration, EnvPrefix, configName)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL not found. Please set %s_RPC_URL", types.ErrConfiguration, EnvPrefix)
	}
	if err := validateURL("rpc_url", c.RPCURL); err != nil {
		return err
	}
	if err := c.ValidateAPI(); err != nil {
		return err
	}
	if c.DefaultSlippage > 100 {
		return fmt.Errorf("%w: default_slippage must be between 0 and 100, got %d", types.ErrConfiguration, c.DefaultSlippage)
	}
	if c.Contracts.TaxRate.IsNegative() || c.Contracts.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: contracts.tax_rate must be in [0, 1), got %s", types.ErrConfiguration, c.Contracts.TaxRate)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	return nil
}

// ValidateAPI checks the listing API URLs
func (c *Config) ValidateAPI() error {
	if err := validateURL("api_url", c.APIURL); err != nil {
		return err
	}
	return validateURL("api_url_v2", c.APIURLV2)
}

// ValidateSolana checks the Solana swap settings
func (c *Config) ValidateSolana() error {
	if strings.TrimSpace(c.Solana.PrivateKey) == "" {
		return fmt.Errorf("%w: solana private key not found. Please set %s_SOLANA_PRIVATE_KEY", types.ErrConfiguration, EnvPrefix)
	}
	if err := validateURL("solana.rpc_url", c.Solana.RPCURL); err != nil {
		return err
	}
	return validateURL("solana.jupiter_url", c.Solana.JupiterURL)
}

// EVMEndpoint returns the RPC URL with the API key applied. Keys for
// /v2 and /v3 style endpoints are appended as a path segment, others as
// an apikey query parameter.
func (c *Config) EVMEndpoint() string {
	if c.RPCAPIKey == "" {
		return c.RPCURL
	}
	base := strings.TrimRight(c.RPCURL, "/")
	if strings.HasSuffix(base, "/v2") || strings.HasSuffix(base, "/v3") {
		return base + "/" + c.RPCAPIKey
	}
	return withQuery(c.RPCURL, "apikey", c.RPCAPIKey)
}

// SolanaEndpoint returns the Solana RPC URL with the api-key query applied
func (c *Config) SolanaEndpoint() string {
	if c.Solana.RPCAPIKey == "" {
		return c.Solana.RPCURL
	}
	return withQuery(c.Solana.RPCURL, "api-key", c.Solana.RPCAPIKey)
}

// ApplyLogLevel configures logrus from the log_level setting
func (c *Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s is not a valid URL: %q", types.ErrConfiguration, key, raw)
	}
	return nil
}
