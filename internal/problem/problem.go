// Package problem models a preimage search space as an inclusive range of
// strings over an alphabet, treated as base-|alphabet| integers. It carries
// the range arithmetic the control plane partitions work with, plus the
// SHA-256 searcher and the startup self-benchmark.
package problem

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// Problem is one preimage search: find a string in [Start, End] whose
// SHA-256 digest equals Hash. Current is the enumeration cursor.
type Problem struct {
	Alphabet string
	Start    string
	End      string
	Hash     string
	Current  string
}

// New builds a problem with the cursor at Start.
func New(alphabet, start, end, hash string) *Problem {
	return &Problem{
		Alphabet: alphabet,
		Start:    start,
		End:      end,
		Hash:     hash,
		Current:  start,
	}
}

// FromPart rehydrates a problem covering exactly one part's range.
func FromPart(p Part) *Problem {
	return New(p.Alphabet, p.Start, p.End, p.Hash)
}

// TotalCombinations counts the strings in the inclusive range.
func (p *Problem) TotalCombinations() int {
	start := StrToIndex(p.Start, p.Alphabet)
	end := StrToIndex(p.End, p.Alphabet)
	if end < start {
		return 0
	}
	return end - start + 1
}

// Next advances the cursor and returns the new candidate, or "" when the
// cursor already sits on End. Unlike the fixed-width boundary helpers, a
// carry past the top grows the string by prepending the alphabet's first
// character.
func (p *Problem) Next() (string, bool) {
	if p.Current == p.End {
		return "", false
	}

	runes := []rune(p.Alphabet)
	base := len(runes)
	chars := []rune(p.Current)

	for i := len(chars) - 1; i >= 0; i-- {
		pos := strings.IndexRune(p.Alphabet, chars[i])
		if pos < 0 {
			continue
		}
		if pos+1 < base {
			chars[i] = runes[pos+1]
			p.Current = string(chars)
			return p.Current, true
		}
		chars[i] = runes[0]
	}

	// Every position wrapped; grow by one character.
	p.Current = string(runes[0]) + string(chars)
	return p.Current, true
}

// CheckHash reports whether candidate's SHA-256 digest matches the target.
func (p *Problem) CheckHash(candidate string) bool {
	sum := sha256.Sum256([]byte(candidate))
	return hex.EncodeToString(sum[:]) == p.Hash
}

// DivideIntoN splits the range into at most n contiguous parts whose sizes
// differ by at most one, using ceil distribution.
func (p *Problem) DivideIntoN(n int) []Part {
	total := p.TotalCombinations()
	if n == 0 || total == 0 {
		return nil
	}

	numParts := min(n, total)
	minLen := max(len([]rune(p.Start)), len([]rune(p.End)))
	startIdx := StrToIndex(p.Start, p.Alphabet)
	endIdx := StrToIndex(p.End, p.Alphabet)

	var parts []Part
	prevStart := startIdx
	remaining := total

	for i := 0; i < numParts; i++ {
		var partSize, partEnd int
		if i == numParts-1 {
			partSize = remaining
			partEnd = endIdx
		} else {
			partSize = (remaining + (numParts - i) - 1) / (numParts - i)
			partEnd = prevStart + partSize - 1
		}
		if partEnd > endIdx {
			break
		}

		parts = append(parts, Part{
			Start:    IndexToStr(prevStart, p.Alphabet, minLen),
			End:      IndexToStr(partEnd, p.Alphabet, minLen),
			Alphabet: p.Alphabet,
			Hash:     p.Hash,
			State:    NotDistributed,
		})

		prevStart = partEnd + 1
		if remaining < partSize {
			break
		}
		remaining -= partSize
		if prevStart > endIdx {
			break
		}
	}

	return parts
}

// DivideIntoNAndKeepPercentage splits the leading (100-percentage)% of the
// range into at most n even parts and emits the trailing percentage% as one
// final part, the caller's retained share.
func (p *Problem) DivideIntoNAndKeepPercentage(n int, percentage float64) []Part {
	total := p.TotalCombinations()
	if n == 0 || total == 0 || percentage < 0 || percentage > 100 {
		return nil
	}

	minLen := max(len([]rune(p.Start)), len([]rune(p.End)))
	startIdx := StrToIndex(p.Start, p.Alphabet)
	endIdx := StrToIndex(p.End, p.Alphabet)

	firstTotal := int(math.Round(float64(total) * (100 - percentage) / 100))
	if firstTotal == 0 {
		// Everything goes to the retained share.
		return []Part{{
			Start:    IndexToStr(startIdx, p.Alphabet, minLen),
			End:      IndexToStr(endIdx, p.Alphabet, minLen),
			Alphabet: p.Alphabet,
			Hash:     p.Hash,
			State:    NotDistributed,
		}}
	}

	var parts []Part
	numParts := min(n, firstTotal)
	prevStart := startIdx
	remaining := firstTotal

	for i := 0; i < numParts; i++ {
		var partSize int
		if i == numParts-1 {
			partSize = remaining
		} else {
			partSize = (remaining + (numParts - i) - 1) / (numParts - i)
		}
		partEnd := prevStart + partSize - 1
		if partEnd > endIdx {
			break
		}

		parts = append(parts, Part{
			Start:    IndexToStr(prevStart, p.Alphabet, minLen),
			End:      IndexToStr(partEnd, p.Alphabet, minLen),
			Alphabet: p.Alphabet,
			Hash:     p.Hash,
			State:    NotDistributed,
		})

		prevStart = partEnd + 1
		if remaining < partSize {
			break
		}
		remaining -= partSize
		if prevStart > endIdx {
			break
		}
	}

	if prevStart <= endIdx {
		parts = append(parts, Part{
			Start:    IndexToStr(prevStart, p.Alphabet, minLen),
			End:      IndexToStr(endIdx, p.Alphabet, minLen),
			Alphabet: p.Alphabet,
			Hash:     p.Hash,
			State:    NotDistributed,
		})
	}

	return parts
}
