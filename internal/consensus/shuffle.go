package consensus

import (
	"sort"

	"github.com/drand/ledger-beacon/common/address"
)

// lcgMultiplier/lcgIncrement are Knuth's MMIX constants for a 64-bit linear
// congruential generator. Any fixed, published 64-bit LCG works for
// spec.md §9's "bit-identical across implementations" requirement as long
// as every implementation agrees on the same one; MMIX's is picked here
// since it is the most widely reproduced 64-bit LCG and leaves no ambiguity
// about its parameters.
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
	shuffleRounds        = 1000
)

// lcg is a 64-bit linear congruential generator seeded once and advanced by
// Next.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	return &lcg{state: seed}
}

// Next advances the generator and returns its new state.
func (g *lcg) Next() uint64 {
	g.state = g.state*lcgMultiplier + lcgIncrement
	return g.state
}

// shuffleQualified deterministically permutes a pre-sorted qualified set in
// place, seeded by entropy, per spec.md §9: 1000 iterations of
// swap(arr[rng()%n], arr[rng()%n]). qual must already be in a
// canonical (e.g. lexicographic) order before calling shuffleQualified, so
// every honest node starts the shuffle from the same array.
func shuffleQualified(qual []address.Address, entropy uint64) {
	n := len(qual)
	if n < 2 {
		return
	}
	rng := newLCG(entropy)
	for i := 0; i < shuffleRounds; i++ {
		a := int(rng.Next() % uint64(n))
		b := int(rng.Next() % uint64(n))
		qual[a], qual[b] = qual[b], qual[a]
	}
}

// rankOf returns identity's position in the entropy-shuffled qual (lower is
// better), or -1 if identity is not present.
func rankOf(qual []address.Address, entropy uint64, identity address.Address) int {
	shuffled := append([]address.Address(nil), qual...)
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].Less(shuffled[j]) })
	shuffleQualified(shuffled, entropy)
	for i, a := range shuffled {
		if a.Equal(identity) {
			return i
		}
	}
	return -1
}
