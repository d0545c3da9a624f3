package problem

import (
	"fmt"
	"sort"
	"strings"
)

// PartState tracks what the leader knows about one sub-range.
type PartState string

const (
	// NotDistributed means no child currently owns the range.
	NotDistributed PartState = "NotDistributed"

	// Distributed means exactly one child is searching the range.
	Distributed PartState = "Distributed"

	// SearchedAndNotFound means the range was exhausted without a hit.
	SearchedAndNotFound PartState = "SearchedAndNotFound"
)

// Part is an inclusive enumeration sub-range of a problem, identified by its
// Start and End strings over the problem's alphabet.
type Part struct {
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Alphabet string    `json:"alphabet"`
	Hash     string    `json:"hash"`
	State    PartState `json:"state"`
}

func (p Part) String() string {
	return fmt.Sprintf("[%s - %s] %s (%d combinations)",
		p.Start, p.End, p.State, p.TotalCombinations())
}

// TotalCombinations counts the strings in the inclusive range, 0 when the
// range is inverted.
func (p Part) TotalCombinations() int {
	start := StrToIndex(p.Start, p.Alphabet)
	end := StrToIndex(p.End, p.Alphabet)
	if end < start {
		return 0
	}
	return end - start + 1
}

// SplitAtCombinations cuts the part after at most budget combinations. The
// head keeps the receiver's state and covers min(budget, total) combinations
// from Start; the tail, when the part was larger than the budget, covers the
// rest. A part that fits the budget returns itself and no tail.
func (p Part) SplitAtCombinations(budget int) (Part, *Part) {
	if budget < 1 {
		budget = 1
	}

	total := p.TotalCombinations()
	if total <= budget {
		return p, nil
	}

	minLen := max(len([]rune(p.Start)), len([]rune(p.End)))
	startIdx := StrToIndex(p.Start, p.Alphabet)
	headEnd := startIdx + budget - 1

	head := p
	head.End = IndexToStr(headEnd, p.Alphabet, minLen)

	tail := p
	tail.Start = IndexToStr(headEnd+1, p.Alphabet, minLen)

	return head, &tail
}

// StrToIndex maps a string over the alphabet to its base-|alphabet| value.
// Characters outside the alphabet contribute digit 0.
func StrToIndex(s, alphabet string) int {
	base := len([]rune(alphabet))
	acc := 0
	for _, c := range s {
		idx := strings.IndexRune(alphabet, c)
		if idx < 0 {
			idx = 0
		}
		acc = acc*base + idx
	}
	return acc
}

// IndexToStr renders idx as a string over the alphabet, left-padded with the
// alphabet's first character to at least minLen.
func IndexToStr(idx int, alphabet string, minLen int) string {
	runes := []rune(alphabet)
	base := len(runes)

	var out []rune
	for idx > 0 {
		out = append(out, runes[idx%base])
		idx /= base
	}
	for len(out) < minLen {
		out = append(out, runes[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// NextStr returns the fixed-width successor of s, wrapping around at the top
// of the range. Boundary arithmetic only; the growing variant used during
// enumeration lives on Problem.
func NextStr(s, alphabet string) string {
	runes := []rune(alphabet)
	base := len(runes)
	chars := []rune(s)

	for i := len(chars) - 1; i >= 0; i-- {
		pos := strings.IndexRune(alphabet, chars[i])
		if pos+1 < base {
			chars[i] = runes[pos+1]
			break
		}
		chars[i] = runes[0]
	}
	return string(chars)
}

// PrevStr returns the fixed-width predecessor of s, wrapping around at the
// bottom of the range.
func PrevStr(s, alphabet string) string {
	runes := []rune(alphabet)
	chars := []rune(s)

	for i := len(chars) - 1; i >= 0; i-- {
		pos := strings.IndexRune(alphabet, chars[i])
		if pos > 0 {
			chars[i] = runes[pos-1]
			break
		}
		chars[i] = runes[len(runes)-1]
	}
	return string(chars)
}

// SortParts orders parts by the integer value of their Start.
func SortParts(parts []Part) {
	if len(parts) == 0 {
		return
	}
	alphabet := parts[0].Alphabet
	sort.SliceStable(parts, func(i, j int) bool {
		return StrToIndex(parts[i].Start, alphabet) < StrToIndex(parts[j].Start, alphabet)
	})
}

// MergeParts collapses contiguous parts into a single NotDistributed part
// spanning from the lowest Start to the highest End. Gaps between the inputs
// are not checked; callers only pass contiguous runs.
func MergeParts(parts []Part) Part {
	sorted := append([]Part(nil), parts...)
	SortParts(sorted)

	return Part{
		Start:    sorted[0].Start,
		End:      sorted[len(sorted)-1].End,
		Alphabet: sorted[0].Alphabet,
		Hash:     sorted[0].Hash,
		State:    NotDistributed,
	}
}

// UpdateStateOfParts overlays updated onto parts: every intersection takes
// updated's state, with the covering part split into up to three pieces.
// Afterwards adjacent parts with matching state are coalesced. When updated
// overlaps nothing it is appended as-is; callers are expected to stay inside
// the existing cover.
func UpdateStateOfParts(parts *[]Part, updated Part) {
	SortParts(*parts)

	var next []Part
	overlapped := false

	for _, part := range *parts {
		ps, pe := StrToIndex(part.Start, part.Alphabet), StrToIndex(part.End, part.Alphabet)
		us, ue := StrToIndex(updated.Start, part.Alphabet), StrToIndex(updated.End, part.Alphabet)
		if ue < ps || us > pe {
			next = append(next, part)
			continue
		}

		if us > ps {
			left := part
			left.End = PrevStr(updated.Start, part.Alphabet)
			next = append(next, left)
		}

		middle := part
		middle.Start = maxStr(part.Start, updated.Start, part.Alphabet)
		middle.End = minStr(part.End, updated.End, part.Alphabet)
		middle.State = updated.State
		next = append(next, middle)
		overlapped = true

		if ue < pe {
			right := part
			right.Start = NextStr(updated.End, part.Alphabet)
			next = append(next, right)
		}
	}

	if !overlapped {
		next = append(next, updated)
	}

	var merged []Part
	for _, part := range next {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.End == PrevStr(part.Start, part.Alphabet) && last.State == part.State {
				last.End = part.End
				continue
			}
		}
		merged = append(merged, part)
	}
	*parts = merged
}

func maxStr(a, b, alphabet string) string {
	if StrToIndex(a, alphabet) > StrToIndex(b, alphabet) {
		return a
	}
	return b
}

func minStr(a, b, alphabet string) string {
	if StrToIndex(a, alphabet) < StrToIndex(b, alphabet) {
		return a
	}
	return b
}
