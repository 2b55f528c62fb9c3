// Package crypto provides request signing and encrypted secret storage for
// authenticated venue APIs.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the MEXC contract API.
type HMACAuth struct {
	Key    string // API access key
	Secret string // API secret
}

// ContractHeaders returns the HTTP headers for a MEXC contract API request.
// The signature is HMAC-SHA256(secret, accessKey+timestamp+params) encoded as
// lowercase hex. params is the sorted query string for GET/DELETE requests
// and the raw JSON body for POST requests.
//
// Returned header keys:
//   - ApiKey
//   - Request-Time
//   - Signature
func (h *HMACAuth) ContractHeaders(params string) map[string]string {
	return h.ContractHeadersAt(params, time.Now().UnixMilli())
}

// ContractHeadersAt is like ContractHeaders but lets the caller supply the
// millisecond timestamp (useful for deterministic testing).
func (h *HMACAuth) ContractHeadersAt(params string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)

	message := h.Key + ts + params
	sig := hmacSHA256Hex([]byte(h.Secret), message)

	return map[string]string{
		"ApiKey":       h.Key,
		"Request-Time": ts,
		"Signature":    sig,
	}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result as a lowercase hex string.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
