package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"limit-order-go/infrastructure/logger"
)

// 交易所接入方式
const (
	ModePaper = "paper"
	ModeREST  = "rest"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Symbol   SymbolConfig   `yaml:"symbol"`
	Order    OrderConfig    `yaml:"order"`
	Market   MarketConfig   `yaml:"market"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alert    AlertConfig    `yaml:"alert"`
	API      APIConfig      `yaml:"api"`
}

type ExchangeConfig struct {
	Mode         string  `yaml:"mode"` // paper 或 rest
	BaseURL      string  `yaml:"baseURL"`
	APIKey       string  `yaml:"apiKey"`
	APISecret    string  `yaml:"apiSecret"`
	RateLimit    float64 `yaml:"rateLimit"` // 每秒请求数
	Burst        int     `yaml:"burst"`
	TimeoutMs    int     `yaml:"timeoutMs"`
	RecvWindowMs int64   `yaml:"recvWindowMs"`
	// FeePercent 账户费率（百分比），为空表示未知
	FeePercent *decimal.Decimal `yaml:"feePercent"`
	// PaperLatencyMs paper 模式下每次调用的模拟延迟
	PaperLatencyMs int `yaml:"paperLatencyMs"`
	// BreakerThreshold rest 模式下连续传输故障多少次后熔断，0 表示关闭
	BreakerThreshold  int `yaml:"breakerThreshold"`
	BreakerCooldownMs int `yaml:"breakerCooldownMs"`
}

// SymbolConfig 保存交易对的精度/名义限制（来自 exchangeInfo）。
type SymbolConfig struct {
	Name        string          `yaml:"name"`
	TickSize    decimal.Decimal `yaml:"tickSize"`
	StepSize    decimal.Decimal `yaml:"stepSize"`
	MinQty      decimal.Decimal `yaml:"minQty"`
	MaxQty      decimal.Decimal `yaml:"maxQty"`
	MinNotional decimal.Decimal `yaml:"minNotional"`
}

type OrderConfig struct {
	CheckIntervalMs   int             `yaml:"checkIntervalMs"`
	SummaryIntervalMs int             `yaml:"summaryIntervalMs"` // 0 表示与 checkIntervalMs 相同
	PriceOffset       decimal.Decimal `yaml:"priceOffset"`
	RetentionSeconds  int             `yaml:"retentionSeconds"`
}

// CheckInterval 轮询间隔。
func (o OrderConfig) CheckInterval() time.Duration {
	return time.Duration(o.CheckIntervalMs) * time.Millisecond
}

func (o OrderConfig) SummaryInterval() time.Duration {
	return time.Duration(o.SummaryIntervalMs) * time.Millisecond
}

func (o OrderConfig) Retention() time.Duration {
	return time.Duration(o.RetentionSeconds) * time.Second
}

type MarketConfig struct {
	WSEndpoint string `yaml:"wsEndpoint"`
	// MaxStalenessMs 盘口快照超过这个时间未更新时，需要盘口的下单被拒绝；0 表示不检查
	MaxStalenessMs int `yaml:"maxStalenessMs"`
}

func (m MarketConfig) MaxStaleness() time.Duration {
	return time.Duration(m.MaxStalenessMs) * time.Millisecond
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type AlertConfig struct {
	WebhookURL      string `yaml:"webhookURL"`
	ThrottleSeconds int    `yaml:"throttleSeconds"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default 返回填充了默认值的配置；Load 在其之上解析 YAML。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Exchange: ExchangeConfig{
			Mode:      ModePaper,
			RateLimit: 10,
			Burst:     5,
			TimeoutMs: 10000,
		},
		Order: OrderConfig{
			CheckIntervalMs:  1500,
			PriceOffset:      decimal.NewFromInt(1),
			RetentionSeconds: 300,
		},
		Market:  MarketConfig{MaxStalenessMs: 5000},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9101"},
		Alert:   AlertConfig{ThrottleSeconds: 60},
		API:     APIConfig{Addr: ":8080"},
	}
}

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil && !isCredentialsOnly(err) {
		return cfg, err
	}
	if v := os.Getenv("LO_EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("LO_EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	return cfg, Validate(cfg)
}
