package state

import "math/bits"

// Bitset is a 256-bit presence set backing the product registry arena.
type Bitset struct {
	Words [4]uint64
}

// FindFirstClearAndSet returns the lowest clear bit after setting it.
func (b *Bitset) FindFirstClearAndSet() (int, error) {
	for w := range b.Words {
		if b.Words[w] == ^uint64(0) {
			continue
		}
		idx := w*64 + bits.TrailingZeros64(^b.Words[w])
		b.Words[w] |= 1 << uint(idx%64)
		return idx, nil
	}
	return 0, ErrBitsetFull
}

func (b *Bitset) Set(x int) error {
	if x < 0 || x > MaxProducts-1 {
		return ErrBitsetRange
	}
	b.Words[x/64] |= 1 << uint(x%64)
	return nil
}

func (b *Bitset) Clear(x int) error {
	if x < 0 || x > MaxProducts-1 {
		return ErrBitsetRange
	}
	b.Words[x/64] &^= 1 << uint(x%64)
	return nil
}

func (b *Bitset) Contains(x int) bool {
	if x < 0 || x > MaxProducts-1 {
		return false
	}
	return b.Words[x/64]&(1<<uint(x%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.Words {
		n += bits.OnesCount64(w)
	}
	return n
}
