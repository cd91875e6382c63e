// Package identifier produces the short random prefix of generated file
// names.
//
// Identifiers are 4 random bytes rendered as 8 upper-case hex digits. No
// registry of issued identifiers is kept and nothing checks them against
// existing directory listings; a collision (1 in 2^32 per pair) surfaces as
// an ALREADY_EXISTS failure from the storage gateway.
package identifier

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Length of an identifier in characters.
const Length = 8

// Generator draws identifiers from an entropy source.
type Generator struct {
	src io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{src: rand.Reader}
}

// NewWithSource returns a Generator reading from src, for deterministic tests.
func NewWithSource(src io.Reader) *Generator {
	return &Generator{src: src}
}

// NewShortID returns a fresh 8-character upper-case hex identifier.
func (g *Generator) NewShortID() (string, error) {
	var b [4]byte
	if _, err := io.ReadFull(g.src, b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	var sb strings.Builder
	for _, x := range b {
		fmt.Fprintf(&sb, "%02X", x)
	}
	return sb.String(), nil
}
