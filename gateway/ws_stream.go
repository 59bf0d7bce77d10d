package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TickerHandler 接收最优买/卖价更新。
type TickerHandler interface {
	OnBookTicker(symbol string, bid, ask decimal.Decimal)
}

// TickerHandlerFunc 适配普通函数。
type TickerHandlerFunc func(symbol string, bid, ask decimal.Decimal)

func (f TickerHandlerFunc) OnBookTicker(symbol string, bid, ask decimal.Decimal) { f(symbol, bid, ask) }

// BookTickerStream 订阅 combined bookTicker 流，断线自动重连。
type BookTickerStream struct {
	Endpoint     string // 例如 wss://stream.binance.com:9443
	Symbols      []string
	Handler      TickerHandler
	Dialer       *websocket.Dialer
	MaxRetries   int
	RetryBackoff time.Duration
	ReadTimeout  time.Duration
	Logger       *zap.Logger
}

func NewBookTickerStream(endpoint string, handler TickerHandler, logger *zap.Logger, symbols ...string) *BookTickerStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookTickerStream{
		Endpoint:     endpoint,
		Symbols:      symbols,
		Handler:      handler,
		Dialer:       websocket.DefaultDialer,
		MaxRetries:   5,
		RetryBackoff: 3 * time.Second,
		ReadTimeout:  30 * time.Second,
		Logger:       logger,
	}
}

func (b *BookTickerStream) streamURL() (string, error) {
	if len(b.Symbols) == 0 {
		return "", errors.New("no symbols subscribed")
	}
	u, err := url.Parse(b.Endpoint)
	if err != nil {
		return "", err
	}
	streams := make([]string, 0, len(b.Symbols))
	for _, s := range b.Symbols {
		streams = append(streams, strings.ToLower(s)+"@bookTicker")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream"
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 阻塞直到 ctx 取消或连续重连失败超过 MaxRetries。
func (b *BookTickerStream) Run(ctx context.Context) error {
	endpoint, err := b.streamURL()
	if err != nil {
		return err
	}
	retries := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, _, err := b.Dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			retries = 0
			b.Logger.Info("book ticker stream connected", zap.String("endpoint", endpoint))
			err = b.read(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
		}
		if retries >= b.MaxRetries {
			return fmt.Errorf("book ticker stream failed after %d retries: %w", b.MaxRetries, err)
		}
		retries++
		backoff := time.Duration(retries) * b.RetryBackoff
		b.Logger.Warn("book ticker stream disconnected",
			zap.Int("retry", retries),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (b *BookTickerStream) read(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		if b.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		bt, err := ParseBookTicker(message)
		if err != nil {
			b.Logger.Debug("skip ws message", zap.Error(err))
			continue
		}
		if b.Handler != nil {
			b.Handler.OnBookTicker(bt.Symbol, bt.Bid, bt.Ask)
		}
	}
}
