package magic

import (
	"fmt"

	"github.com/hailam/taflmagic/internal/board"
)

// Entry holds the magic bitboard data for a single square.
type Entry struct {
	Mask   board.Mask // Relevant blocker squares
	Magic  board.Mask // Multiplier
	Shift  uint8      // Bits to shift right
	Offset uint32     // Index into the attack table
}

// Size returns the number of attack slots owned by the square.
func (e Entry) Size() int {
	return 1 << e.Mask.OnesCount()
}

// Table is a complete magic table. It is never modified after construction
// and is safe for concurrent use.
type Table struct {
	geometry board.Geometry
	entries  []Entry
	attacks  []board.Mask
	buildID  string

	// restricted holds the squares the oracle kept out of every move set.
	restricted board.Mask
}

// restrictedOracle is implemented by oracles that exclude squares from
// move sets, such as board.Orthogonal.
type restrictedOracle interface {
	Restricted() board.Mask
}

// NewTable assembles a table from per-square entries in square order and the
// concatenated attack array. The slices are owned by the table afterwards.
func NewTable(g board.Geometry, entries []Entry, attacks []board.Mask, buildID string) (*Table, error) {
	t := &Table{
		geometry: g,
		entries:  entries,
		attacks:  attacks,
		buildID:  buildID,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	if err := t.geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if len(t.entries) != t.geometry.Squares() {
		return fmt.Errorf("%w: %d entries for %d squares", ErrInvalidTable, len(t.entries), t.geometry.Squares())
	}

	next := 0
	for i, e := range t.entries {
		bits := e.Mask.OnesCount()
		if bits > maxPatternBits {
			return fmt.Errorf("%w: square %d has %d relevant bits", ErrInvalidTable, i, bits)
		}
		if e.Shift != Shift(bits) {
			return fmt.Errorf("%w: square %d shift %d, want %d", ErrInvalidTable, i, e.Shift, Shift(bits))
		}
		if int(e.Offset) != next {
			return fmt.Errorf("%w: square %d offset %d, want %d", ErrInvalidTable, i, e.Offset, next)
		}
		next += e.Size()
	}

	if len(t.attacks) != next {
		return fmt.Errorf("%w: %d attack masks, want %d", ErrInvalidTable, len(t.attacks), next)
	}
	return nil
}

// Geometry returns the board the table was built for.
func (t *Table) Geometry() board.Geometry {
	return t.geometry
}

// BuildID identifies the build that produced the table.
func (t *Table) BuildID() string {
	return t.buildID
}

// Restricted returns the squares the building oracle kept out of every
// move set. Verifying the table needs an oracle with the same squares.
func (t *Table) Restricted() board.Mask {
	return t.restricted
}

// WithRestricted returns a copy of t recording restricted as the oracle's
// restricted squares. The copy shares the attack array.
func (t *Table) WithRestricted(restricted board.Mask) *Table {
	c := *t
	c.restricted = restricted
	return &c
}

// Entry returns the magic entry of sq.
//
// Entry, Index, Lookup and Moves do no bounds checking: sq must be on the
// table's board and panics otherwise.
func (t *Table) Entry(sq board.Square) Entry {
	return t.entries[sq]
}

// Entries returns a copy of the per-square entries in square order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Attacks returns the concatenated attack array. Callers must not modify it.
func (t *Table) Attacks() []board.Mask {
	return t.attacks
}

// Len returns the number of attack slots.
func (t *Table) Len() int {
	return len(t.attacks)
}

// Index returns the attack slot for sq under the full board occupancy.
func (t *Table) Index(sq board.Square, occupancy board.Mask) int {
	e := &t.entries[sq]
	return int(e.Offset) + Index(occupancy.And(e.Mask), e.Magic, e.Shift)
}

// Lookup returns the precomputed oracle answer for sq under occupancy.
func (t *Table) Lookup(sq board.Square, occupancy board.Mask) board.Mask {
	return t.attacks[t.Index(sq, occupancy)]
}

// Moves returns the destinations from sq, excluding occupied squares the
// blocker mask does not track (such as the edge square ending a ray).
func (t *Table) Moves(sq board.Square, occupancy board.Mask) board.Mask {
	return t.Lookup(sq, occupancy).AndNot(occupancy)
}

// Verify checks every blocker pattern of every square against the oracle.
func (t *Table) Verify(oracle board.Oracle) error {
	g := oracle.Geometry()
	if g != t.geometry {
		return fmt.Errorf("%w: table is %s, oracle is %s", ErrMismatch, t.geometry, g)
	}
	restricted := board.Empty
	if r, ok := oracle.(restrictedOracle); ok {
		restricted = r.Restricted()
	}
	if restricted != t.restricted {
		return fmt.Errorf("%w: table restricts %s, oracle restricts %s", ErrMismatch, t.restricted, restricted)
	}

	for i := range t.entries {
		sq, err := g.Square(i)
		if err != nil {
			return err
		}
		mask := oracle.BlockerMask(sq)
		if mask != t.entries[i].Mask {
			return fmt.Errorf("%w: square %s blocker mask %s, table has %s",
				ErrMismatch, g.Name(sq), mask, t.entries[i].Mask)
		}
		for _, occ := range Patterns(mask) {
			want := oracle.LegalMoves(sq, occ)
			if got := t.Lookup(sq, occ); got != want {
				return fmt.Errorf("%w: square %s occupancy %s: got %s, want %s",
					ErrMismatch, g.Name(sq), occ, got, want)
			}
		}
	}
	return nil
}

// TableSize returns the number of attack slots a table for oracle needs.
func TableSize(oracle board.Oracle) int {
	total := 0
	for i := 0; i < oracle.Geometry().Squares(); i++ {
		total += 1 << oracle.BlockerMask(board.Square(i)).OnesCount()
	}
	return total
}
