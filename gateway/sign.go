package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// DefaultRecvWindowMs 签名请求的有效窗口。
const DefaultRecvWindowMs = 5000

var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// SignParams 追加 timestamp/recvWindow 并对编码后的 query 做 HMAC-SHA256 签名。
func SignParams(params map[string]string, secret string, recvWindowMs int64) (query, signature string) {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	if recvWindowMs <= 0 {
		recvWindowMs = DefaultRecvWindowMs
	}
	v.Set("recvWindow", strconv.FormatInt(recvWindowMs, 10))
	v.Set("timestamp", strconv.FormatInt(timeNowMillis(), 10))
	query = v.Encode()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}
