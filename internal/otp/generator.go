// Package otp issues short-lived numeric verification codes.
package otp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	// Digits is the length of every issued code.
	Digits = 6
	// TTL is how long a code stays valid after issuance.
	TTL = 10 * time.Minute

	space = 1_000_000
	// limit is the largest multiple of space that fits in a uint32; draws at or
	// above it are rejected so every code is equally likely.
	limit = (1 << 32) / space * space
)

// Challenge is an issued code and its validity window.
type Challenge struct {
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Generator produces challenges from an injected random source and clock.
// It holds no state of its own.
type Generator struct {
	Rand io.Reader
	Now  func() time.Time
}

// NewGenerator returns a Generator backed by crypto/rand and the wall clock.
func NewGenerator() *Generator {
	return &Generator{Rand: rand.Reader, Now: time.Now}
}

// Issue returns a new uniformly distributed zero-padded code expiring TTL after issuance.
func (g *Generator) Issue() (Challenge, error) {
	n, err := g.draw()
	if err != nil {
		return Challenge{}, err
	}
	// Expiry is persisted in epoch milliseconds; keep the whole challenge on
	// that grid so the stored expiry equals ExpiresAt.
	now := g.Now().UTC().Truncate(time.Millisecond)
	return Challenge{
		Code:      fmt.Sprintf("%0*d", Digits, n),
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	}, nil
}

func (g *Generator) draw() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(g.Rand, buf[:]); err != nil {
			return 0, fmt.Errorf("read random: %w", err)
		}
		if v := binary.BigEndian.Uint32(buf[:]); v < limit {
			return v % space, nil
		}
	}
}
