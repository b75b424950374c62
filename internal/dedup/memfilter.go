package dedup

import (
	"context"
	"hash/fnv"
	"sync"
)

// MemoryFilter is a small hand-rolled in-process bit-set filter, used when
// the RedisBloom module is unavailable (local dev, unit tests without a
// real Redis). It hashes each id through k independent FNV-1a variants and
// sets the corresponding bits, same shape as a textbook Bloom filter. It is
// process-local and not shared across workers, so it is never used in
// production — see the standard-library justification in the design notes.
type MemoryFilter struct {
	mu   sync.Mutex
	bits []uint64
	k    int
}

// NewMemoryFilter creates a filter sized for roughly expectedItems entries
// at a low false-positive rate, using 4 hash functions.
func NewMemoryFilter(expectedItems int) *MemoryFilter {
	bits := expectedItems * 10
	if bits < 1024 {
		bits = 1024
	}
	words := (bits + 63) / 64
	return &MemoryFilter{bits: make([]uint64, words), k: 4}
}

func (f *MemoryFilter) positions(id string) []int {
	positions := make([]int, f.k)
	nbits := len(f.bits) * 64

	for i := 0; i < f.k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(id))
		positions[i] = int(h.Sum64() % uint64(nbits))
	}
	return positions
}

// Exists reports whether id may have been added before.
func (f *MemoryFilter) Exists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pos := range f.positions(id) {
		word, bit := pos/64, uint(pos%64)
		if f.bits[word]&(1<<bit) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Add records id in the filter.
func (f *MemoryFilter) Add(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pos := range f.positions(id) {
		word, bit := pos/64, uint(pos%64)
		f.bits[word] |= 1 << bit
	}
	return nil
}
