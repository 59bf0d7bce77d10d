package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CombinedMessage 对应 combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTicker 提取 bookTicker 消息的最优买/卖价。
type BookTicker struct {
	Symbol string          `json:"s"`
	Bid    decimal.Decimal `json:"b"`
	BidQty decimal.Decimal `json:"B"`
	Ask    decimal.Decimal `json:"a"`
	AskQty decimal.Decimal `json:"A"`
}

// ParseBookTicker 同时接受 combined stream 与单流消息。
func ParseBookTicker(raw []byte) (BookTicker, error) {
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return BookTicker{}, err
	}
	payload := raw
	if len(msg.Data) > 0 {
		payload = msg.Data
	}
	var bt BookTicker
	if err := json.Unmarshal(payload, &bt); err != nil {
		return BookTicker{}, err
	}
	if bt.Symbol == "" {
		return BookTicker{}, fmt.Errorf("not a bookTicker message: %s", raw)
	}
	return bt, nil
}
