// Package receipt produces verifiable digests over the event history so an
// observer can prove what settled without replaying the ledger.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Entry is one observed event as it entered the history.
type Entry struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// SumObject hashes v's canonical JSON encoding: json.Marshal bytes under
// SHA256, hex encoded with a scheme prefix.
func SumObject(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// ChainHash folds a sequence of entries into one digest: each entry's
// object hash on its own line, the whole manifest hashed once more. Any
// reordering, insertion or mutation changes the result.
func ChainHash(entries []Entry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		h, err := SumObject(e)
		if err != nil {
			return "", err
		}
		b.WriteString(h)
		b.WriteString("\n")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
