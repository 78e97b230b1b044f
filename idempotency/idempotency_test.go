package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soukworks/souk/fault"
)

func TestValidateKey(t *testing.T) {
	for _, ok := range []string{
		"k",
		"evt_2024-08-1",
		"A-Z_a-z-0-9",
		strings.Repeat("x", 255),
	} {
		require.NoError(t, ValidateKey(ok), "%q", ok)
	}

	for _, bad := range []string{
		"",
		strings.Repeat("x", 256),
		"space key",
		"emoji🙂",
		"semi;colon",
		"dot.key",
	} {
		var err = ValidateKey(bad)
		require.Equal(t, fault.InvalidInput, fault.StatusOf(err), "%q", bad)
	}
}

func TestFingerprint(t *testing.T) {
	var body = []byte(`{"orderId":"o-1","qty":10}`)

	// Stable across calls, 16 hex characters.
	var fp = Fingerprint("create-order", body)
	require.Equal(t, fp, Fingerprint("create-order", body))
	require.Len(t, fp, 16)

	// Sensitive to both the webhook type and the body.
	require.NotEqual(t, fp, Fingerprint("add-item", body))
	require.NotEqual(t, fp, Fingerprint("create-order", []byte(`{"orderId":"o-1","qty":11}`)))

	// The type/body boundary is unambiguous.
	require.NotEqual(t, Fingerprint("ab", []byte("c")), Fingerprint("a", []byte("bc")))
}
