// Package magic builds and serves magic bitboard tables: per-square
// multiply-shift hashes from blocker occupancy to precomputed moves.
package magic

import (
	"fmt"

	"github.com/hailam/taflmagic/internal/board"
)

// maxPatternBits bounds the powerset size a single square may expand to.
const maxPatternBits = 30

// Pattern converts an index in [0, 2^len(squares)) to an occupancy:
// bit b of index selects squares[b].
func Pattern(index int, squares []board.Square) board.Mask {
	var occ board.Mask
	for b, sq := range squares {
		if index&(1<<b) != 0 {
			occ = occ.With(sq)
		}
	}
	return occ
}

// Patterns returns every subset of mask, including Empty and mask itself.
// Patterns[i] is Pattern(i, mask.Squares()). It panics if mask has more
// than 30 bits set.
func Patterns(mask board.Mask) []board.Mask {
	squares := mask.Squares()
	if len(squares) > maxPatternBits {
		panic(fmt.Sprintf("magic: %d relevant bits exceed the pattern limit of %d", len(squares), maxPatternBits))
	}

	out := make([]board.Mask, 1<<len(squares))
	for i := range out {
		out[i] = Pattern(i, squares)
	}
	return out
}
