package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soukworks/souk/money"
)

// ContentHash computes an entry's chain hash over its type, canonical
// two-decimal amount, order reference, predecessor hash, and creation time.
// The first entry of a chain hashes an empty predecessor.
func ContentHash(t EntryType, amount money.Amount, orderID *uuid.UUID, prevHash string, createdAt time.Time) string {
	var orderRef string
	if orderID != nil {
		orderRef = orderID.String()
	}

	var payload = strings.Join([]string{
		string(t),
		money.String(amount),
		orderRef,
		prevHash,
		createdAt.UTC().Format(time.RFC3339Nano),
	}, "|")

	var sum = sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
