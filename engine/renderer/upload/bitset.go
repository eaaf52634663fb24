package upload

import "math/bits"

// slotSet is a growable bitset of dirty slot indices.
type slotSet struct {
	chunks []uint64
}

func (s *slotSet) Set(slot uint32) {
	chunk := int(slot / 64)
	for len(s.chunks) <= chunk {
		s.chunks = append(s.chunks, 0)
	}
	s.chunks[chunk] |= 1 << (slot % 64)
}

func (s *slotSet) Empty() bool {
	for _, c := range s.chunks {
		if c != 0 {
			return false
		}
	}
	return true
}

func (s *slotSet) Count() int {
	n := 0
	for _, c := range s.chunks {
		n += bits.OnesCount64(c)
	}
	return n
}

func (s *slotSet) Clear() {
	for i := range s.chunks {
		s.chunks[i] = 0
	}
}

// ForEach visits set slots in ascending order.
func (s *slotSet) ForEach(fn func(slot uint32)) {
	for i, c := range s.chunks {
		for c != 0 {
			bit := bits.TrailingZeros64(c)
			c &= c - 1
			fn(uint32(i*64 + bit))
		}
	}
}
