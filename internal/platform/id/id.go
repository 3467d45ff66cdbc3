package id

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

type RandomHex struct{}

func (RandomHex) New() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// LocalPrefix marks identifiers minted on this device before the remote
// store has assigned an authoritative one.
const LocalPrefix = "local-"

func NewLocal(gen Generator) string {
	return LocalPrefix + gen.New()
}

func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}
