package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent with every authenticated settlement backend request.
const (
	HeaderAPIKey    = "RFQ-API-KEY"
	HeaderAddress   = "RFQ-ADDRESS"
	HeaderTimestamp = "RFQ-TIMESTAMP"
	HeaderSignature = "RFQ-SIGNATURE"
)

// RequestAuth signs settlement backend requests with an API key and a shared
// secret. The signature is base64(HMAC-SHA256(secret, timestamp+method+path+body)).
type RequestAuth struct {
	Key    string
	Secret string
}

// Headers returns the authentication headers for a request made now.
func (a *RequestAuth) Headers(address, method, path, body string) map[string]string {
	return a.HeadersAt(address, method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (a *RequestAuth) HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secret, err := base64.StdEncoding.DecodeString(a.Secret)
	if err != nil {
		// Not base64: use the raw secret.
		secret = []byte(a.Secret)
	}

	return map[string]string{
		HeaderAPIKey:    a.Key,
		HeaderAddress:   address,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64(secret, ts+method+path+body),
	}
}

// String returns a redacted representation suitable for logging.
func (a *RequestAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("RequestAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
