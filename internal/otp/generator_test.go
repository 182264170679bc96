package otp

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

func fixedNow() time.Time { return time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC) }

func seeded(seed byte) *Generator {
	var key [32]byte
	key[0] = seed
	return &Generator{Rand: rand.NewChaCha8(key), Now: fixedNow}
}

func TestIssue_FormatAndExpiry(t *testing.T) {
	g := seeded(1)
	for i := 0; i < 500; i++ {
		c, err := g.Issue()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, c.Code)
		assert.Equal(t, fixedNow(), c.IssuedAt)
		assert.Equal(t, c.IssuedAt.Add(10*time.Minute), c.ExpiresAt)
	}
}

func TestIssue_DeterministicForSeed(t *testing.T) {
	a, b := seeded(7), seeded(7)
	for i := 0; i < 20; i++ {
		ca, err := a.Issue()
		require.NoError(t, err)
		cb, err := b.Issue()
		require.NoError(t, err)
		assert.Equal(t, ca.Code, cb.Code)
	}
}

func TestIssue_PreservesLeadingZeros(t *testing.T) {
	// 42 encoded big-endian.
	g := &Generator{Rand: bytes.NewReader([]byte{0, 0, 0, 42}), Now: fixedNow}
	c, err := g.Issue()
	require.NoError(t, err)
	assert.Equal(t, "000042", c.Code)
}

func TestIssue_RejectsBiasedDraws(t *testing.T) {
	// First draw is above limit and must be discarded; second yields 7.
	g := &Generator{Rand: bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 7}), Now: fixedNow}
	c, err := g.Issue()
	require.NoError(t, err)
	assert.Equal(t, "000007", c.Code)
}

func TestIssue_RandomFailure(t *testing.T) {
	g := &Generator{Rand: bytes.NewReader(nil), Now: fixedNow}
	_, err := g.Issue()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF))
}

func TestIssue_CoversCodeSpace(t *testing.T) {
	g := seeded(3)
	firstDigits := map[byte]bool{}
	for i := 0; i < 2000; i++ {
		c, err := g.Issue()
		require.NoError(t, err)
		firstDigits[c.Code[0]] = true
	}
	assert.Len(t, firstDigits, 10)
}

func TestIssue_MillisecondPrecision(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 30, 0, 123_456_789, time.UTC)
	g := seeded(4)
	g.Now = func() time.Time { return at }

	c, err := g.Issue()
	require.NoError(t, err)
	assert.Equal(t, at.Truncate(time.Millisecond), c.IssuedAt)
	assert.True(t, time.UnixMilli(c.ExpiresAt.UnixMilli()).Equal(c.ExpiresAt))
	assert.Equal(t, TTL, c.ExpiresAt.Sub(c.IssuedAt))
}
