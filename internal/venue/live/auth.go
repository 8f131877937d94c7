package live

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// auth signs REST requests with the venue's API-key/HMAC-SHA256 scheme,
// adapted from Auth.buildHMAC (message = timestamp + method + path [+
// body]) but grounded on binance_connector.py's request signing — a
// query-string HMAC over "params + timestamp", not an EIP-712 wallet.
type auth struct {
	apiKey    string
	apiSecret string
}

func newAuth(apiKey, apiSecret string) *auth {
	return &auth{apiKey: apiKey, apiSecret: apiSecret}
}

// sign appends a timestamp and an HMAC-SHA256 signature over the query
// string to params, and returns the headers to attach to the request.
func (a *auth) sign(params url.Values) (url.Values, map[string]string) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))

	return params, map[string]string{
		"X-API-KEY": a.apiKey,
	}
}

// listenKeyHeaders returns the headers required to request or renew a
// user-data-stream listen key — a key-only auth, no HMAC, per
// binance_connector.py's _get_listen_key.
func (a *auth) listenKeyHeaders() map[string]string {
	return map[string]string{"X-API-KEY": a.apiKey}
}

func (a *auth) String() string {
	return fmt.Sprintf("auth{key=%s...}", maskKey(a.apiKey))
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return k[:4] + "****"
}
