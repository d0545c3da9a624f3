package problem

import "time"

// Benchmark space: 7-character alphanumeric strings against an all-zero
// digest nothing hashes to, so the loop never terminates early.
const (
	benchAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	benchHash     = "0000000000000000000000000000000000000000000000000000000000000000"
)

// MeasurePower hashes candidates for the given duration and returns the
// node's throughput in thousands of hashes per second. It runs once at
// startup; the result is the weight the leader partitions work by.
func MeasurePower(d time.Duration) uint32 {
	p := New(benchAlphabet, "aaaaaaa", "zzzzzzz", benchHash)

	deadline := time.Now().Add(d)
	count := 0
	for time.Now().Before(deadline) {
		p.CheckHash(p.Current)
		count++
		if _, ok := p.Next(); !ok {
			break
		}
	}

	secs := d.Seconds()
	if secs <= 0 {
		secs = 1
	}
	return uint32(float64(count) / secs / 1000)
}
