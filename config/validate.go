package config

import (
	"errors"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

const errMissingCredentials = ErrInvalid("exchange.apiKey/apiSecret is required in rest mode (or env overrides)")

// Validate 检查全部字段并一次性返回所有问题。
func Validate(cfg AppConfig) error {
	var merr *multierror.Error
	add := func(msg string) { merr = multierror.Append(merr, ErrInvalid(msg)) }

	if cfg.Env == "" {
		add("env is required")
	}

	switch cfg.Exchange.Mode {
	case ModePaper:
	case ModeREST:
		if cfg.Exchange.BaseURL == "" {
			add("exchange.baseURL is required in rest mode")
		}
		if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
			merr = multierror.Append(merr, errMissingCredentials)
		}
	default:
		add("exchange.mode must be paper or rest")
	}
	if cfg.Exchange.RateLimit <= 0 {
		add("exchange.rateLimit must be > 0")
	}
	if cfg.Exchange.Burst <= 0 {
		add("exchange.burst must be > 0")
	}
	if cfg.Exchange.TimeoutMs < 0 || cfg.Exchange.RecvWindowMs < 0 || cfg.Exchange.PaperLatencyMs < 0 {
		add("exchange timeouts must be >= 0")
	}
	if cfg.Exchange.BreakerThreshold < 0 || cfg.Exchange.BreakerCooldownMs < 0 {
		add("exchange breaker settings must be >= 0")
	}
	if cfg.Exchange.FeePercent != nil && cfg.Exchange.FeePercent.IsNegative() {
		add("exchange.feePercent must be >= 0")
	}

	if cfg.Symbol.Name == "" {
		add("symbol.name is required")
	}
	if !cfg.Symbol.TickSize.IsPositive() {
		add("symbol.tickSize must be > 0")
	}
	if !cfg.Symbol.StepSize.IsPositive() {
		add("symbol.stepSize must be > 0")
	}
	if cfg.Symbol.MinQty.IsNegative() || cfg.Symbol.MaxQty.IsNegative() || cfg.Symbol.MinNotional.IsNegative() {
		add("symbol qty/notional bounds must be >= 0")
	}

	if cfg.Order.CheckIntervalMs <= 0 {
		add("order.checkIntervalMs must be > 0")
	}
	if cfg.Order.SummaryIntervalMs < 0 {
		add("order.summaryIntervalMs must be >= 0")
	}
	if cfg.Order.PriceOffset.IsNegative() {
		add("order.priceOffset must be >= 0")
	}
	if cfg.Order.RetentionSeconds < 0 {
		add("order.retentionSeconds must be >= 0")
	}
	if cfg.Market.MaxStalenessMs < 0 {
		add("market.maxStalenessMs must be >= 0")
	}
	if cfg.Alert.ThrottleSeconds < 0 {
		add("alert.throttleSeconds must be >= 0")
	}

	return merr.ErrorOrNil()
}

// isCredentialsOnly 校验失败仅因缺少凭证时，允许环境变量补齐。
func isCredentialsOnly(err error) bool {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return false
	}
	for _, e := range merr.Errors {
		if !errors.Is(e, errMissingCredentials) {
			return false
		}
	}
	return len(merr.Errors) > 0
}
