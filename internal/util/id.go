// Package util holds small helpers shared across Docuport packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// NewID returns a random 128-bit identifier as lowercase hex, tagged with
// the record kind: cli_ for clients, team_ and inv_ for teams and their
// invitations, doc_ and file_ for documents and stored artifacts. An empty
// prefix yields the bare hex, used where the kind is implied.
func NewID(prefix string) string {
	b := make([]byte, idBytes)
	_, _ = rand.Read(b)
	if prefix == "" {
		return hex.EncodeToString(b)
	}
	return prefix + "_" + hex.EncodeToString(b)
}
