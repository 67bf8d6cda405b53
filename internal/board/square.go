// Package board implements Tafl board geometry, wide bitboards and the
// sliding-move rule oracle the magic tables are built from.
package board

import (
	"fmt"
	"strconv"
)

// Square represents a cell on the board, indexed row-major from the
// bottom-left corner: index = y*Width + x.
type Square uint8

// NoSquare is returned alongside errors from square conversions.
const NoSquare Square = 255

// Geometry describes a rectangular board.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Tafl11 is the 11x11 board used by Hnefatafl.
var Tafl11 = Geometry{Width: 11, Height: 11}

// Squares returns the total number of cells.
func (g Geometry) Squares() int {
	return g.Width * g.Height
}

// String returns the board size, e.g. "11x11".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Validate reports whether the board fits in a Mask.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %s has a non-positive side", ErrInvalidGeometry, g)
	}
	if g.Width > MaskBits || g.Height > MaskBits || g.Squares() > MaskBits {
		return fmt.Errorf("%w: %s has %d squares, at most %d fit in a mask",
			ErrInvalidGeometry, g, g.Squares(), MaskBits)
	}
	return nil
}

// Contains returns true if (x, y) lies on the board.
func (g Geometry) Contains(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// Square converts a square index into a Square.
func (g Geometry) Square(i int) (Square, error) {
	if i < 0 || i >= g.Squares() || i >= MaskBits {
		return NoSquare, fmt.Errorf("%w: index %d on %s board", ErrInvalidSquare, i, g)
	}
	return Square(i), nil
}

// SquareAt converts (x, y) coordinates into a Square.
func (g Geometry) SquareAt(x, y int) (Square, error) {
	if !g.Contains(x, y) {
		return NoSquare, fmt.Errorf("%w: (%d,%d) on %s board", ErrInvalidSquare, x, y, g)
	}
	return g.Square(y*g.Width + x)
}

// Coords returns the (x, y) coordinates of sq.
func (g Geometry) Coords(sq Square) (x, y int) {
	return int(sq) % g.Width, int(sq) / g.Width
}

// Name returns the algebraic name of sq (e.g. "f6"), files from 'a'.
func (g Geometry) Name(sq Square) string {
	if int(sq) >= g.Squares() {
		return "-"
	}
	x, y := g.Coords(sq)
	return fmt.Sprintf("%c%d", 'a'+x, y+1)
}

// ParseSquare parses algebraic notation (e.g. "k11") into a Square.
func (g Geometry) ParseSquare(s string) (Square, error) {
	if len(s) < 2 {
		return NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}

	x := int(s[0] - 'a')
	rank, err := strconv.Atoi(s[1:])
	if err != nil {
		return NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}

	return g.SquareAt(x, rank-1)
}

// Full returns a mask with every square of the board set.
func (g Geometry) Full() Mask {
	var m Mask
	for i := 0; i < g.Squares() && i < MaskBits; i++ {
		m = m.With(Square(i))
	}
	return m
}
