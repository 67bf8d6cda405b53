package magic

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/hailam/taflmagic/internal/board"
)

// Policy decides which index collisions a candidate may have.
type Policy int

const (
	// Relaxed accepts collisions between patterns with identical moves.
	Relaxed Policy = iota
	// Strict rejects any index reuse. Superseded by Relaxed; kept for
	// reproducing tables built with the older rule.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Relaxed:
		return "relaxed"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "relaxed" or "strict".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relaxed", "":
		return Relaxed, nil
	case "strict":
		return Strict, nil
	}
	return Relaxed, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Result is the outcome of the search for one square.
type Result struct {
	Square     board.Square
	Mask       board.Mask
	Multiplier board.Mask
	Shift      uint8
	// Attacks is indexed by the accepted hash. Slots no pattern hashed to
	// hold Empty.
	Attacks []board.Mask
	// Trials counts candidates drawn, including the accepted one.
	Trials int
}

// Shift returns the right shift that maps the top bits of a 128-bit product
// onto [0, 2^bits).
func Shift(bits int) uint8 {
	return uint8(board.MaskBits - bits)
}

// Index hashes occupancy, which must already be restricted to the blocker
// mask, into a square's attack slice.
func Index(occupancy, multiplier board.Mask, shift uint8) int {
	return int(occupancy.MulWrap(multiplier).Rsh(uint(shift)).Lo())
}

// SparseCandidate draws a multiplier with few bits set: the AND of three
// uniformly random 128-bit values.
func SparseCandidate(rng *rand.Rand) board.Mask {
	random := func() board.Mask { return board.NewMask(rng.Uint64(), rng.Uint64()) }
	return random().And(random()).And(random())
}

// gatherAttempts bounds how many layouts a gatherer tries for one candidate.
// A mask that exhausts it once is handed to SparseCandidate from then on.
const gatherAttempts = 1 << 16

// gatherer draws multipliers shaped for one blocker mask.
//
// Relevant bit b adds the multiplier shifted left by b to the product, so it
// first reaches the index window at the lowest multiplier bit at or above
// shift-b, its floor. If those first hits land on pairwise distinct window
// bits, the window is a sum of terms with distinct lowest bits and every
// subset of the mask gets its own index. Bits above a term's first hit are
// free. Carries from below the window can still break a layout, which the
// fill catches.
type gatherer struct {
	bits    int
	floors  []int // ascending
	options []gatherOption
	off     bool
}

type gatherOption struct {
	last int // floors[i..last] share the multiplier bit
	pos  int
}

func newGatherer(mask board.Mask, shift uint8) *gatherer {
	squares := mask.Squares()
	n := len(squares)
	floors := make([]int, n)
	for i, sq := range squares {
		floors[n-1-i] = int(shift) - int(sq)
	}
	return &gatherer{
		bits:   n,
		floors: floors,
		off:    n == 0 || n > 64,
	}
}

// candidate returns a gathered multiplier, or false when no layout was
// found within gatherAttempts.
func (g *gatherer) candidate(rng *rand.Rand) (board.Mask, bool) {
	if g.off {
		return board.Empty, false
	}
	for range gatherAttempts {
		if m, ok := g.layout(rng); ok {
			return m, true
		}
	}
	g.off = true
	return board.Empty, false
}

// layout walks the floors upward. Each step picks one multiplier bit at
// random among those that serve the next run of floors without reusing a
// window bit, and must stay below the floor after the run.
func (g *gatherer) layout(rng *rand.Rand) (board.Mask, bool) {
	var (
		multiplier board.Mask
		taken      uint64
	)
	k := g.bits
	for i := 0; i < k; {
		g.options = g.options[:0]
		for j := i; j < k && g.floors[j]-g.floors[i] < k; j++ {
			lo := max(g.floors[j], 0)
			hi := min(g.floors[i]+k-1, board.MaskBits-1)
			if j+1 < k {
				hi = min(hi, g.floors[j+1]-1)
			}
			for pos := lo; pos <= hi; pos++ {
				if g.fits(i, j, pos, taken) {
					g.options = append(g.options, gatherOption{last: j, pos: pos})
				}
			}
		}
		if len(g.options) == 0 {
			return board.Empty, false
		}

		opt := g.options[rng.IntN(len(g.options))]
		for m := i; m <= opt.last; m++ {
			taken |= 1 << (opt.pos - g.floors[m])
		}
		multiplier = multiplier.With(board.Square(opt.pos))
		i = opt.last + 1
	}
	return multiplier, true
}

func (g *gatherer) fits(first, last, pos int, taken uint64) bool {
	for m := first; m <= last; m++ {
		bit := uint64(1) << (pos - g.floors[m])
		if taken&bit != 0 {
			return false
		}
		taken |= bit
	}
	return true
}

// Search finds a multiplier for sq. patterns are the subsets of mask and
// moves[i] is the oracle's answer for patterns[i]. Candidates come from a
// gatherer for mask, or from SparseCandidate once the gatherer gives up,
// until one is accepted; there is no trial limit.
func Search(sq board.Square, mask board.Mask, patterns, moves []board.Mask, rng *rand.Rand, policy Policy) Result {
	bits := mask.OnesCount()
	size := 1 << bits
	shift := Shift(bits)

	attacks := make([]board.Mask, size)
	used := make([]bool, size)
	gather := newGatherer(mask, shift)

	for trials := 1; ; trials++ {
		multiplier, ok := gather.candidate(rng)
		if !ok {
			multiplier = SparseCandidate(rng)
		}
		clear(attacks)
		clear(used)

		if fill(patterns, moves, multiplier, shift, attacks, used, policy) {
			return Result{
				Square:     sq,
				Mask:       mask,
				Multiplier: multiplier,
				Shift:      shift,
				Attacks:    attacks,
				Trials:     trials,
			}
		}
	}
}

// fill hashes every pattern in order into attacks and reports whether the
// candidate survived. The first conflicting pattern aborts the attempt.
func fill(patterns, moves []board.Mask, multiplier board.Mask, shift uint8, attacks []board.Mask, used []bool, policy Policy) bool {
	for i, occ := range patterns {
		idx := Index(occ, multiplier, shift)
		if used[idx] {
			if policy == Strict || attacks[idx] != moves[i] {
				return false
			}
			continue
		}
		used[idx] = true
		attacks[idx] = moves[i]
	}
	return true
}
