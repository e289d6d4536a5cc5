// Package ids generates opaque, URL-safe identifiers for every persisted entity.
package ids

import (
	"crypto/rand"
)

// alphabet is a 64-character URL-safe alphabet, sized so a single random byte's
// low 6 bits can index it without modulo bias.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// Length is the fixed size of every generated identifier.
const Length = 21

// New returns a new 21-character opaque identifier.
//
// Panics if the system CSPRNG is unavailable — the same failure mode as any
// caller of crypto/rand, and one callers cannot meaningfully recover from.
func New() string {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}

	id := make([]byte, Length)
	mask := byte(len(alphabet)) - 1
	// len(alphabet) is 64 so a single byte's low 6 bits index it uniformly.
	for i, b := range buf {
		id[i] = alphabet[b&mask]
	}
	return string(id)
}
