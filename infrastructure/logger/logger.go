package logger

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"limit-order-go/order"
)

// Logger 在 zap 之上提供订单生命周期的结构化日志。
type Logger struct {
	*zap.Logger
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 按配置组装输出。文件一律 JSON；ErrorFile 只接收 error 及以上。
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(encoder(cfg.Format), zapcore.Lock(os.Stdout), level))
		case "file":
			if cfg.OutputFile == "" {
				continue
			}
			core, err := fileCore(cfg.OutputFile, level)
			if err != nil {
				return nil, err
			}
			cores = append(cores, core)
		}
	}
	if cfg.ErrorFile != "" {
		core, err := fileCore(cfg.ErrorFile, zapcore.ErrorLevel)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
	}, nil
}

func encoder(format string) zapcore.Encoder {
	if format == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

func fileCore(path string, level zapcore.LevelEnabler) (zapcore.Core, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.NewCore(encoder("json"), zapcore.AddSync(f), level), nil
}

func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrderEvent 记录订单通知；错误事件转给 GatewayFault。
func (l *Logger) OrderEvent(e order.Event) {
	if e.Kind == order.EventError {
		l.GatewayFault(e.OrderID, e.Err)
		return
	}
	fields := []zap.Field{
		zap.String("event", string(e.Kind)),
		zap.String("order_id", e.OrderID),
		zap.String("status", string(e.Status)),
	}
	switch e.Kind {
	case order.EventFill:
		fields = append(fields, zap.String("filled", e.Filled.String()))
	case order.EventFinish:
		fields = append(fields, zap.Bool("completed", e.Completed), zap.String("price", e.Price.String()))
	case order.EventSummary:
		if s := e.Summary; s != nil {
			fields = append(fields,
				zap.String("avg_price", s.Price.String()),
				zap.String("amount", s.Amount.String()),
				zap.Int("orders", s.Orders))
			if s.FeePercent.Valid {
				fields = append(fields, zap.String("fee_percent", s.FeePercent.Decimal.String()))
			}
		}
	}
	l.Info("order_event", fields...)
}

// GatewayFault 记录导致订单终止的错误，交易所故障带上调用与子订单。
func (l *Logger) GatewayFault(orderID string, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("order_id", orderID), zap.Error(err)}
	var gwErr *order.GatewayError
	if errors.As(err, &gwErr) {
		fields = append(fields, zap.String("op", gwErr.Op), zap.String("suborder_id", gwErr.SuborderID))
	}
	l.Error("order_fault", fields...)
}

// ComponentError 记录后台组件（服务器、行情流、配置监听）的错误。
func (l *Logger) ComponentError(component, action string, err error) {
	l.Error("component_error",
		zap.String("component", component),
		zap.String("action", action),
		zap.Error(err))
}

// ConfigReloaded 记录热更新后生效的订单参数。
func (l *Logger) ConfigReloaded(check, summary, retention time.Duration) {
	l.Info("config_reload",
		zap.Duration("check_interval", check),
		zap.Duration("summary_interval", summary),
		zap.Duration("retention", retention))
}

// Close 刷新缓冲
func (l *Logger) Close() error {
	return l.Sync()
}
