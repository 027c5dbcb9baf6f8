package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAuthHeaders(t *testing.T) {
	auth := &RequestAuth{Key: "key-1", Secret: "c2VjcmV0"}

	h1 := auth.HeadersAt("0xabc", "POST", "/rpc", `{"a":1}`, 1_700_000_000)
	h2 := auth.HeadersAt("0xabc", "POST", "/rpc", `{"a":1}`, 1_700_000_000)
	h3 := auth.HeadersAt("0xabc", "POST", "/rpc", `{"a":2}`, 1_700_000_000)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1[HeaderSignature], h3[HeaderSignature])
	assert.Equal(t, "key-1", h1[HeaderAPIKey])
	assert.Equal(t, "1700000000", h1[HeaderTimestamp])
	assert.NotContains(t, auth.String(), "c2VjcmV0")
}
