package problem

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextGrowsOnFullWrap(t *testing.T) {
	p := New("ab", "a", "bb", testHash)

	var seen []string
	seen = append(seen, p.Current)
	for {
		s, ok := p.Next()
		if !ok {
			break
		}
		seen = append(seen, s)
	}

	assert.Equal(t, []string{"a", "b", "aa", "ab", "ba", "bb"}, seen)
}

func TestNextStopsAtEnd(t *testing.T) {
	p := New("abc", "c", "c", testHash)

	_, ok := p.Next()
	assert.False(t, ok)
}

func TestCheckHash(t *testing.T) {
	p := New("abc", "a", "c", testHash) // testHash is sha256("a")

	assert.True(t, p.CheckHash("a"))
	assert.False(t, p.CheckHash("b"))
}

func TestDivideIntoNEvenSizes(t *testing.T) {
	p := New("abc", "aaa", "ccc", testHash) // 27 combinations

	parts := p.DivideIntoN(4)
	require.Len(t, parts, 4)

	sizes := make([]int, len(parts))
	total := 0
	for i, part := range parts {
		sizes[i] = part.TotalCombinations()
		total += sizes[i]
	}
	assert.Equal(t, 27, total)
	for _, s := range sizes {
		assert.InDelta(t, 27.0/4.0, float64(s), 1.0)
	}

	// Contiguity: each part starts right after the previous one ends.
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, NextStr(parts[i-1].End, "abc"), parts[i].Start)
	}
}

func TestDivideIntoNMorePartsThanCombinations(t *testing.T) {
	p := New("ab", "a", "b", testHash) // 2 combinations

	parts := p.DivideIntoN(10)
	assert.Len(t, parts, 2)
}

func TestDivideIntoNZero(t *testing.T) {
	p := New("ab", "a", "b", testHash)

	assert.Nil(t, p.DivideIntoN(0))
}

func TestDivideAndKeepPercentage(t *testing.T) {
	p := New("ab", "a", "bb", testHash) // indices 0..3, 4 combinations

	parts := p.DivideIntoNAndKeepPercentage(3, 25)

	// 75% of 4 rounds to 3, split into 3 single-combination parts; the
	// trailing element is the retained share.
	require.Len(t, parts, 4)
	assert.Equal(t, "aa", parts[0].Start)
	assert.Equal(t, "aa", parts[0].End)
	assert.Equal(t, "ab", parts[1].Start)
	assert.Equal(t, "ba", parts[2].Start)
	assert.Equal(t, "bb", parts[3].Start)
	assert.Equal(t, "bb", parts[3].End)
}

func TestDivideAndKeepPercentageZeroKeepsNothing(t *testing.T) {
	p := New("abc", "aa", "cc", testHash) // 9 combinations

	parts := p.DivideIntoNAndKeepPercentage(3, 0)

	require.Len(t, parts, 3)
	assert.Equal(t, "cc", parts[len(parts)-1].End)
	total := 0
	for _, part := range parts {
		total += part.TotalCombinations()
	}
	assert.Equal(t, 9, total)
}

func TestDivideAndKeepPercentageHundredIsOnePart(t *testing.T) {
	p := New("abc", "aa", "cc", testHash)

	parts := p.DivideIntoNAndKeepPercentage(3, 100)

	require.Len(t, parts, 1)
	assert.Equal(t, "aa", parts[0].Start)
	assert.Equal(t, "cc", parts[0].End)
}

func TestBruteForcerFindsPreimage(t *testing.T) {
	s := NewBruteForcer(testLogger())
	var stop atomic.Bool

	got, ok := s.Search(part("a", "c", "abc", Distributed), &stop)
	assert.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestBruteForcerExhaustsRange(t *testing.T) {
	s := NewBruteForcer(testLogger())
	var stop atomic.Bool

	// sha256("a") is not a 1-char string over "xyz".
	_, ok := s.Search(part("x", "z", "xyz", Distributed), &stop)
	assert.False(t, ok)
}

func TestBruteForcerHonorsStopFlag(t *testing.T) {
	s := NewBruteForcer(testLogger())
	var stop atomic.Bool
	stop.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := s.Search(part("aaaaaa", "zzzzzz", "abcdefghijklmnopqrstuvwxyz", Distributed), &stop)
		assert.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("searcher did not stop")
	}
}

func TestMeasurePowerIsPositiveThroughput(t *testing.T) {
	power := MeasurePower(50 * time.Millisecond)
	assert.Greater(t, power, uint32(0))
}
