package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"limit-order-go/api"
	"limit-order-go/config"
	"limit-order-go/gateway"
	"limit-order-go/infrastructure/alert"
	"limit-order-go/infrastructure/logger"
	"limit-order-go/market"
	"limit-order-go/metrics"
	"limit-order-go/order"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfgMu      sync.RWMutex // 保护 cfg：配置监听协程会写入
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger *logger.Logger
	alerts *alert.Manager

	// 交易所网关：paper 与 rest 二选一
	exchange order.Exchange
	paper    *gateway.PaperExchange
	rest     *gateway.RESTClient
	breaker  *gateway.BreakerExchange

	// 核心服务
	marketData   *market.Service
	orderManager *order.Manager

	apiServer *httpServerComponent
	lifecycle *LifecycleManager
}

// New 从配置文件创建 Container；配置文件同时被监听热更新。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig 使用已加载的配置，不监听文件。
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildGateway(); err != nil {
		return fmt.Errorf("build gateway failed: %w", err)
	}
	c.buildCoreServices()
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	channels := []alert.Channel{alert.NewZapChannel("log", c.logger.Logger)}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alert.WebhookURL, 5*time.Second))
	}
	c.alerts = alert.NewManager(channels, time.Duration(c.cfg.Alert.ThrottleSeconds)*time.Second)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) constraints() gateway.SymbolConstraints {
	sc := c.cfg.Symbol
	return gateway.SymbolConstraints{
		TickSize:    sc.TickSize,
		StepSize:    sc.StepSize,
		MinQty:      sc.MinQty,
		MaxQty:      sc.MaxQty,
		MinNotional: sc.MinNotional,
	}
}

func (c *Container) feePercent() decimal.NullDecimal {
	if c.cfg.Exchange.FeePercent == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*c.cfg.Exchange.FeePercent)
}

func (c *Container) buildGateway() error {
	ex := c.cfg.Exchange
	switch ex.Mode {
	case config.ModePaper:
		c.paper = gateway.NewPaperExchange(c.constraints(), c.logger.Logger)
		c.paper.FeePercent = c.feePercent()
		c.paper.Latency = time.Duration(ex.PaperLatencyMs) * time.Millisecond
		c.exchange = c.paper
	case config.ModeREST:
		c.rest = &gateway.RESTClient{
			BaseURL:      ex.BaseURL,
			APIKey:       ex.APIKey,
			Secret:       ex.APISecret,
			Symbol:       c.cfg.Symbol.Name,
			RecvWindowMs: ex.RecvWindowMs,
			HTTPClient:   gateway.NewDefaultHTTPClient(time.Duration(ex.TimeoutMs) * time.Millisecond),
			Limiter:      gateway.NewTokenBucketLimiter(ex.RateLimit, ex.Burst),
			Constraints:  c.constraints(),
			FeePercent:   c.feePercent(),
			Logger:       c.logger.Logger,
		}
		c.exchange = c.rest
		if ex.BreakerThreshold > 0 {
			c.breaker = gateway.NewBreakerExchange(c.rest, gateway.BreakerConfig{
				Threshold: ex.BreakerThreshold,
				Cooldown:  time.Duration(ex.BreakerCooldownMs) * time.Millisecond,
			}, c.logger.Logger)
			c.exchange = c.breaker
		}
	default:
		return fmt.Errorf("unknown exchange mode %q", ex.Mode)
	}
	c.logger.Info("gateway built")
	return nil
}

func (c *Container) buildCoreServices() {
	c.marketData = market.NewService(market.NewPublisher())

	oc := c.cfg.Order
	c.orderManager = order.NewManager(c.exchange, order.Config{
		CheckInterval:   oc.CheckInterval(),
		SummaryInterval: oc.SummaryInterval(),
		PriceOffset:     decimal.NewNullDecimal(oc.PriceOffset),
		Logger:          c.logger.Logger,
		Sink:            order.Fanout(c.logger.OrderEvent, c.alerts.OrderSink()),
	})
	c.orderManager.SetRetention(oc.Retention())

	c.logger.Info("core services built")
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(c.orderManager)

	if c.paper != nil {
		// paper 模式下行情驱动撮合
		depth := c.marketData.Publisher().SubscribeDepth()
		c.lifecycle.Register(&runComponent{
			name:   "paper_matcher",
			logger: c.logger,
			run: func(ctx context.Context) error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case d := <-depth:
						c.paper.OnTicker(d.Bid, d.Ask)
					}
				}
			},
		})
	}

	if c.cfg.Market.WSEndpoint != "" {
		stream := gateway.NewBookTickerStream(c.cfg.Market.WSEndpoint,
			gateway.TickerHandlerFunc(c.marketData.OnBookTicker), c.logger.Logger, c.cfg.Symbol.Name)
		c.lifecycle.Register(&runComponent{name: "book_ticker_stream", logger: c.logger, run: stream.Run})
	}

	if c.configPath != "" {
		w := config.Watcher{Path: c.configPath, Logger: c.logger.Logger}
		c.lifecycle.Register(&runComponent{
			name:   "config_watcher",
			logger: c.logger,
			run: func(ctx context.Context) error {
				err := w.Start(ctx, c.applyConfig)
				if ctx.Err() != nil {
					return nil
				}
				return err
			},
		})
	}

	if c.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: mux,
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}

	if c.cfg.API.Addr != "" {
		c.apiServer = &httpServerComponent{
			name:    "api_server",
			handler: c.Router(),
			addr:    c.cfg.API.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register(c.apiServer)
	}
}

// Router 构建订单 HTTP 接口。
func (c *Container) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	cfg := c.Config()
	api.NewHandler(c.orderManager, c.marketData, cfg.Symbol.Name, cfg.Market.MaxStaleness()).Register(r)
	return r
}

// applyConfig 热更新：轮询间隔、汇总间隔与保留时长，对之后创建的订单生效。
func (c *Container) applyConfig(cfg config.AppConfig) {
	oc := cfg.Order
	c.orderManager.SetIntervals(oc.CheckInterval(), oc.SummaryInterval())
	c.orderManager.SetRetention(oc.Retention())
	c.logger.ConfigReloaded(oc.CheckInterval(), oc.SummaryInterval(), oc.Retention())

	c.cfgMu.Lock()
	c.cfg.Order = oc
	c.cfgMu.Unlock()
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止；未结束的订单随 order manager 的 context 一起取消。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.ComponentError("container", "stop", err)
		return err
	}
	c.logger.Info("container stopped")
	// stdout 为管道时 Sync 会报 EINVAL
	_ = c.logger.Close()
	return nil
}

func (c *Container) HealthCheck() error {
	if err := c.lifecycle.CheckHealth(); err != nil {
		return err
	}
	if c.breaker != nil {
		return c.breaker.Health()
	}
	return nil
}

func (c *Container) Orders() *order.Manager  { return c.orderManager }
func (c *Container) Market() *market.Service { return c.marketData }
func (c *Container) Logger() *logger.Logger  { return c.logger }
func (c *Container) Config() config.AppConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return *c.cfg
}

// APIAddr 返回 API 实际监听地址，未启动时为空。
func (c *Container) APIAddr() string {
	if c.apiServer == nil {
		return ""
	}
	return c.apiServer.Addr()
}
