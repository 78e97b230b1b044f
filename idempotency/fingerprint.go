package idempotency

import (
	"fmt"

	"github.com/minio/highwayhash"
)

// fingerprintKey is fixed: fingerprints are stable request identities
// compared across processes and restarts, not authenticators.
var fingerprintKey = []byte("souk-idempotency-fingerprint-key")

// Fingerprint hashes a request's type and body into the identity stored
// with its idempotency key. A replay bearing the same key but a different
// fingerprint is a client bug, not a duplicate.
func Fingerprint(webhookType string, body []byte) string {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		panic(err) // Key length is a compile-time constant.
	}
	h.Write([]byte(webhookType))
	h.Write([]byte{0})
	h.Write(body)
	return fmt.Sprintf("%016x", h.Sum64())
}
