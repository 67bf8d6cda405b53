package board

// Oracle answers the two rule questions the magic tables memoize.
// Implementations must be pure and safe for concurrent use.
type Oracle interface {
	// Geometry returns the board the oracle is defined on.
	Geometry() Geometry

	// BlockerMask returns the squares whose occupancy can change the
	// moves available from sq.
	BlockerMask(sq Square) Mask

	// LegalMoves returns the destinations reachable from sq when the
	// squares in occupancy are taken.
	LegalMoves(sq Square, occupancy Mask) Mask
}

// direction is a unit step along a row or column.
type direction struct{ dx, dy int }

var orthogonal = [4]direction{
	{0, 1},  // North
	{0, -1}, // South
	{1, 0},  // East
	{-1, 0}, // West
}

// Orthogonal is the Tafl sliding mover: pieces travel any distance along a
// row or column and stop before the first occupied square.
type Orthogonal struct {
	geometry   Geometry
	restricted Mask
	masks      []Mask
}

// NewOrthogonal creates the oracle for g. Squares in restricted can be
// passed through but are never reported as destinations.
func NewOrthogonal(g Geometry, restricted Mask) (*Orthogonal, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	o := &Orthogonal{
		geometry:   g,
		restricted: restricted.And(g.Full()),
		masks:      make([]Mask, g.Squares()),
	}
	for i := range o.masks {
		o.masks[i] = slideMask(g, Square(i))
	}
	return o, nil
}

// Geometry implements Oracle.
func (o *Orthogonal) Geometry() Geometry {
	return o.geometry
}

// Restricted returns the squares that are never destinations.
func (o *Orthogonal) Restricted() Mask {
	return o.restricted
}

// BlockerMask implements Oracle. The last square of every ray is left out
// since its occupancy never changes which squares before it are reachable.
func (o *Orthogonal) BlockerMask(sq Square) Mask {
	if int(sq) >= len(o.masks) {
		return Empty
	}
	return o.masks[sq]
}

// LegalMoves implements Oracle. Only occupancy inside the blocker mask is
// consulted, so the last square of a ray is reported whenever the ray
// reaches it; Table.Moves removes occupied squares from the result.
func (o *Orthogonal) LegalMoves(sq Square, occupancy Mask) Mask {
	if int(sq) >= len(o.masks) {
		return Empty
	}
	return SlideMoves(o.geometry, sq, occupancy.And(o.masks[sq])).AndNot(o.restricted)
}

// SlideMoves computes orthogonal slides from sq by ray casting: every square
// strictly before the first square set in blockers.
func SlideMoves(g Geometry, sq Square, blockers Mask) Mask {
	var moves Mask
	x0, y0 := g.Coords(sq)

	for _, d := range orthogonal {
		for x, y := x0+d.dx, y0+d.dy; g.Contains(x, y); x, y = x+d.dx, y+d.dy {
			s := Square(y*g.Width + x)
			if blockers.Has(s) {
				break
			}
			moves = moves.With(s)
		}
	}

	return moves
}

// slideMask returns the relevant blocker squares for sq: both rays along its
// row and column, excluding sq and the edge square ending each ray.
func slideMask(g Geometry, sq Square) Mask {
	var mask Mask
	x0, y0 := g.Coords(sq)

	for _, d := range orthogonal {
		for x, y := x0+d.dx, y0+d.dy; g.Contains(x+d.dx, y+d.dy); x, y = x+d.dx, y+d.dy {
			mask = mask.With(Square(y*g.Width + x))
		}
	}

	return mask
}

// TaflRestricted returns the corner squares and, on boards with a single
// centre cell, the throne.
func TaflRestricted(g Geometry) Mask {
	var m Mask
	corners := [4][2]int{{0, 0}, {g.Width - 1, 0}, {0, g.Height - 1}, {g.Width - 1, g.Height - 1}}
	for _, c := range corners {
		if sq, err := g.SquareAt(c[0], c[1]); err == nil {
			m = m.With(sq)
		}
	}
	if g.Width%2 == 1 && g.Height%2 == 1 {
		if sq, err := g.SquareAt(g.Width/2, g.Height/2); err == nil {
			m = m.With(sq)
		}
	}
	return m
}
