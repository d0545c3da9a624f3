package problem

import (
	"log/slog"
	"sync/atomic"
)

// Searcher exhausts a part's range looking for a preimage. Implementations
// check stop between candidates and bail out promptly when it flips.
type Searcher interface {
	Search(part Part, stop *atomic.Bool) (string, bool)
}

// BruteForcer is the production Searcher: straight SHA-256 enumeration over
// the part's range.
type BruteForcer struct {
	log *slog.Logger
}

func NewBruteForcer(log *slog.Logger) *BruteForcer {
	return &BruteForcer{log: log.With("src", "bruteforcer")}
}

// Search enumerates the range from Start to End inclusive. Returns the
// preimage and true on a hit, "" and false when the range is exhausted or
// the stop flag is raised.
func (b *BruteForcer) Search(part Part, stop *atomic.Bool) (string, bool) {
	p := FromPart(part)

	for {
		if stop.Load() {
			b.log.Debug("search aborted by stop flag", "at", p.Current)
			return "", false
		}
		if p.CheckHash(p.Current) {
			return p.Current, true
		}
		if _, ok := p.Next(); !ok {
			return "", false
		}
	}
}
