// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Venues     []VenueConfig    `mapstructure:"venues"`
	Arbitrage  ArbitrageConfig  `mapstructure:"arbitrage"`
	Quotes     QuotesConfig     `mapstructure:"quotes"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration. PrivateKey is only
// read from the environment, never from the config file.
type EthereumConfig struct {
	HTTPURL        string        `mapstructure:"http_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	PrivateKey     string        `mapstructure:"private_key"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// SettlementConfig holds the settlement contract parameters. The contract
// exposes the executeArbitrage entry point; the engine only builds its
// call parameters.
type SettlementConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	FlashLoanFeeBps int64  `mapstructure:"flash_loan_fee_bps"`
}

// ContractAddressHex returns the settlement contract address.
func (c *SettlementConfig) ContractAddressHex() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// PoolConfig binds a venue pool to an asset pair.
type PoolConfig struct {
	Pair    string `mapstructure:"pair"`    // e.g. "WETH-USDC"
	Address string `mapstructure:"address"` // pool contract
	FeeTier int    `mapstructure:"fee_tier"`
}

// AddressHex returns the pool address.
func (p *PoolConfig) AddressHex() common.Address {
	return common.HexToAddress(p.Address)
}

// VenueConfig describes one liquidity venue in the registry.
type VenueConfig struct {
	Name     string       `mapstructure:"name"`
	Kind     string       `mapstructure:"kind"` // constant-product | concentrated-liquidity | stable-swap
	Pools    []PoolConfig `mapstructure:"pools"`
	FeeBps   int64        `mapstructure:"fee_bps"`        // swap fee for constant-product / stable-swap venues
	AmpCoeff int64        `mapstructure:"amp_coefficient"` // stable-swap amplification, ignored otherwise
	Disabled bool         `mapstructure:"disabled"`

	// QuoterAddress is the on-chain quoter used to corroborate locally
	// computed outputs on concentrated-liquidity venues. Empty skips
	// corroboration.
	QuoterAddress string `mapstructure:"quoter_address"`
}

// QuoterAddressHex returns the quoter contract address.
func (v *VenueConfig) QuoterAddressHex() common.Address {
	return common.HexToAddress(v.QuoterAddress)
}

// ArbitrageConfig holds detection configuration.
type ArbitrageConfig struct {
	Pairs           []string      `mapstructure:"pairs"`
	Trigger         string        `mapstructure:"trigger"` // "ticker" | "blocks"
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	MinTradeSize    string        `mapstructure:"min_trade_size"` // decimal, in the borrowed token
	MaxTradeSize    string        `mapstructure:"max_trade_size"`
	MinProfit       string        `mapstructure:"min_profit"` // decimal, in the borrowed token
	MinMarginBps    int64         `mapstructure:"min_margin_bps"`
	ImpactCeilingBps int64        `mapstructure:"impact_ceiling_bps"`
	SearchSamples   int           `mapstructure:"search_samples"` // grid fallback resolution
	TUIMode         bool          `mapstructure:"-"`              // Set at runtime, not from config file
}

// MinTradeSizeDecimal returns the minimum trade size as a decimal.
func (c *ArbitrageConfig) MinTradeSizeDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.MinTradeSize)
	return d
}

// MaxTradeSizeDecimal returns the maximum trade size as a decimal.
func (c *ArbitrageConfig) MaxTradeSizeDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.MaxTradeSize)
	return d
}

// MinProfitDecimal returns the minimum absolute profit as a decimal.
func (c *ArbitrageConfig) MinProfitDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.MinProfit)
	return d
}

// BreakerConfig holds per-venue circuit breaker knobs.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	MaxCooldown      time.Duration `mapstructure:"max_cooldown"`
}

// QuotesConfig holds quote aggregation configuration.
type QuotesConfig struct {
	VenueTimeout       time.Duration `mapstructure:"venue_timeout"`
	AggregationTimeout time.Duration `mapstructure:"aggregation_timeout"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	QuoteValidity      time.Duration `mapstructure:"quote_validity"`
	MaxConcurrent      int           `mapstructure:"max_concurrent"`
	Breaker            BreakerConfig `mapstructure:"breaker"`
}

// RiskConfig holds risk scoring weights and thresholds.
// Weights are relative; the assessor normalizes them.
type RiskConfig struct {
	LiquidityWeight   float64 `mapstructure:"liquidity_weight"`
	ImpactWeight      float64 `mapstructure:"impact_weight"`
	ReliabilityWeight float64 `mapstructure:"reliability_weight"`
	TimeWeight        float64 `mapstructure:"time_weight"`
	ExecuteBelow      int     `mapstructure:"execute_below"` // score < this -> execute
	SkipAbove         int     `mapstructure:"skip_above"`    // score > this -> skip
}

// ExecutionConfig holds execution coordination configuration.
type ExecutionConfig struct {
	SlippageBps         int64         `mapstructure:"slippage_bps"`
	SafetyMargin        time.Duration `mapstructure:"safety_margin"` // shaved off the opportunity deadline
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	DryRun              bool          `mapstructure:"dry_run"`
}

// PricingConfig holds the reference price feed configuration.
type PricingConfig struct {
	HTTPURL           string        `mapstructure:"http_url"`
	WebSocketURL      string        `mapstructure:"websocket_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "ARB_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.private_key", "ARB_ETH_PRIVATE_KEY", "ETH_PRIVATE_KEY")

	// Settlement
	v.BindEnv("settlement.contract_address", "ARB_SETTLEMENT_CONTRACT")
	v.BindEnv("settlement.flash_loan_fee_bps", "ARB_FLASH_LOAN_FEE_BPS")

	// Arbitrage
	v.BindEnv("arbitrage.pairs", "ARB_PAIRS")
	v.BindEnv("arbitrage.min_profit", "ARB_MIN_PROFIT")
	v.BindEnv("arbitrage.min_margin_bps", "ARB_MIN_MARGIN_BPS")

	// Execution
	v.BindEnv("execution.dry_run", "ARB_DRY_RUN")

	// Pricing
	v.BindEnv("pricing.http_url", "ARB_PRICE_FEED_URL")
	v.BindEnv("pricing.websocket_url", "ARB_PRICE_FEED_WS_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "arb-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")

	// Settlement defaults (Aave V3 flash loan premium)
	v.SetDefault("settlement.flash_loan_fee_bps", 5)

	// Arbitrage defaults
	v.SetDefault("arbitrage.pairs", []string{"WETH-USDC"})
	v.SetDefault("arbitrage.trigger", "ticker")
	v.SetDefault("arbitrage.tick_interval", "3s")
	v.SetDefault("arbitrage.min_trade_size", "0.1")
	v.SetDefault("arbitrage.max_trade_size", "50")
	v.SetDefault("arbitrage.min_profit", "0.005")
	v.SetDefault("arbitrage.min_margin_bps", 10)
	v.SetDefault("arbitrage.impact_ceiling_bps", 100) // 1%
	v.SetDefault("arbitrage.search_samples", 16)

	// Quotes defaults
	v.SetDefault("quotes.venue_timeout", "3s")
	v.SetDefault("quotes.aggregation_timeout", "5s")
	v.SetDefault("quotes.cache_ttl", "2s")
	v.SetDefault("quotes.quote_validity", "10s")
	v.SetDefault("quotes.max_concurrent", 8)
	v.SetDefault("quotes.breaker.failure_threshold", 5)
	v.SetDefault("quotes.breaker.cooldown", "60s")
	v.SetDefault("quotes.breaker.max_cooldown", "10m")

	// Risk defaults
	v.SetDefault("risk.liquidity_weight", 0.35)
	v.SetDefault("risk.impact_weight", 0.25)
	v.SetDefault("risk.reliability_weight", 0.25)
	v.SetDefault("risk.time_weight", 0.15)
	v.SetDefault("risk.execute_below", 30)
	v.SetDefault("risk.skip_above", 60)

	// Execution defaults
	v.SetDefault("execution.slippage_bps", 50)
	v.SetDefault("execution.safety_margin", "2s")
	v.SetDefault("execution.confirm_poll_interval", "1s")
	v.SetDefault("execution.gas_limit", 600000)
	v.SetDefault("execution.dry_run", true)

	// Pricing defaults
	v.SetDefault("pricing.poll_interval", "5s")
	v.SetDefault("pricing.requests_per_minute", 60)
	v.SetDefault("pricing.stale_after", "30s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arb-engine")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// validKinds are the supported venue kinds.
var validKinds = map[string]bool{
	"constant-product":       true,
	"concentrated-liquidity": true,
	"stable-swap":            true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if c.Settlement.ContractAddress != "" && !common.IsHexAddress(c.Settlement.ContractAddress) {
		return fmt.Errorf("invalid settlement.contract_address: %s", c.Settlement.ContractAddress)
	}
	if len(c.Arbitrage.Pairs) == 0 {
		return fmt.Errorf("arbitrage.pairs cannot be empty")
	}
	if c.Arbitrage.Trigger != "ticker" && c.Arbitrage.Trigger != "blocks" {
		return fmt.Errorf("arbitrage.trigger must be \"ticker\" or \"blocks\", got %q", c.Arbitrage.Trigger)
	}
	if c.Arbitrage.ImpactCeilingBps <= 0 {
		return fmt.Errorf("arbitrage.impact_ceiling_bps must be positive")
	}
	if c.Risk.ExecuteBelow < 0 || c.Risk.SkipAbove > 100 || c.Risk.ExecuteBelow > c.Risk.SkipAbove {
		return fmt.Errorf("risk thresholds must satisfy 0 <= execute_below <= skip_above <= 100")
	}

	seen := make(map[string]bool, len(c.Venues))
	for i, venue := range c.Venues {
		if venue.Name == "" {
			return fmt.Errorf("venues[%d].name is required", i)
		}
		if seen[venue.Name] {
			return fmt.Errorf("duplicate venue name %q", venue.Name)
		}
		seen[venue.Name] = true
		if !validKinds[venue.Kind] {
			return fmt.Errorf("venues[%d].kind %q is not supported", i, venue.Kind)
		}
		for j, pool := range venue.Pools {
			if !common.IsHexAddress(pool.Address) {
				return fmt.Errorf("venues[%d].pools[%d]: invalid address %s", i, j, pool.Address)
			}
			if pool.Pair == "" {
				return fmt.Errorf("venues[%d].pools[%d].pair is required", i, j)
			}
		}
		if venue.Kind == "stable-swap" && venue.AmpCoeff <= 0 {
			return fmt.Errorf("venues[%d]: stable-swap venues need amp_coefficient > 0", i)
		}
	}

	return nil
}
