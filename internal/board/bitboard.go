package board

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"lukechampine.com/uint128"
)

// MaskBits is the width of a Mask. Boards up to 128 cells fit.
const MaskBits = 128

// Mask is a 128-bit board where bit i corresponds to Square(i).
// Masks are values: every operation returns a new Mask.
type Mask struct {
	v uint128.Uint128
}

// Empty has no bits set.
var Empty Mask

// NewMask builds a mask from its low and high 64-bit words.
func NewMask(lo, hi uint64) Mask {
	return Mask{uint128.New(lo, hi)}
}

// SquareMask returns a mask with only sq set.
func SquareMask(sq Square) Mask {
	return Mask{uint128.From64(1).Lsh(uint(sq))}
}

// MaskOf returns a mask with the given squares set.
func MaskOf(squares ...Square) Mask {
	var m Mask
	for _, sq := range squares {
		m = m.With(sq)
	}
	return m
}

// Lo returns the low 64 bits.
func (m Mask) Lo() uint64 { return m.v.Lo }

// Hi returns the high 64 bits.
func (m Mask) Hi() uint64 { return m.v.Hi }

// Or returns the union of m and o.
func (m Mask) Or(o Mask) Mask {
	return Mask{m.v.Or(o.v)}
}

// And returns the intersection of m and o.
func (m Mask) And(o Mask) Mask {
	return Mask{m.v.And(o.v)}
}

// AndNot returns the squares of m not in o.
func (m Mask) AndNot(o Mask) Mask {
	return NewMask(m.v.Lo&^o.v.Lo, m.v.Hi&^o.v.Hi)
}

// Xor returns the symmetric difference of m and o.
func (m Mask) Xor(o Mask) Mask {
	return Mask{m.v.Xor(o.v)}
}

// Not flips all 128 bits.
func (m Mask) Not() Mask {
	return NewMask(^m.v.Lo, ^m.v.Hi)
}

// With returns m with sq set.
func (m Mask) With(sq Square) Mask {
	return m.Or(SquareMask(sq))
}

// Without returns m with sq cleared.
func (m Mask) Without(sq Square) Mask {
	return m.AndNot(SquareMask(sq))
}

// Has returns true if the bit at sq is set.
func (m Mask) Has(sq Square) bool {
	if sq < 64 {
		return m.v.Lo&(1<<sq) != 0
	}
	if sq < MaskBits {
		return m.v.Hi&(1<<(sq-64)) != 0
	}
	return false
}

// IsEmpty returns true if no bits are set.
func (m Mask) IsEmpty() bool {
	return m.v.IsZero()
}

// OnesCount returns the number of set bits (population count).
func (m Mask) OnesCount() int {
	return m.v.OnesCount()
}

// LSB returns the lowest set square, or NoSquare for an empty mask.
func (m Mask) LSB() Square {
	if m.IsEmpty() {
		return NoSquare
	}
	return Square(m.v.TrailingZeros())
}

// Squares returns the set squares in ascending order.
func (m Mask) Squares() []Square {
	squares := make([]Square, 0, m.OnesCount())
	for w, word := range [2]uint64{m.v.Lo, m.v.Hi} {
		for word != 0 {
			squares = append(squares, Square(w*64+bits.TrailingZeros64(word)))
			word &= word - 1
		}
	}
	return squares
}

// MulWrap multiplies m by o modulo 2^128. Overflow is discarded.
func (m Mask) MulWrap(o Mask) Mask {
	return Mask{m.v.MulWrap(o.v)}
}

// Rsh shifts m right by n bits. Shifts of 128 or more yield Empty.
func (m Mask) Rsh(n uint) Mask {
	if n >= MaskBits {
		return Empty
	}
	return Mask{m.v.Rsh(n)}
}

// String returns the mask as 32 hex digits.
func (m Mask) String() string {
	return fmt.Sprintf("0x%016x%016x", m.v.Hi, m.v.Lo)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts 1 to 32 hex
// digits with a 0x prefix.
func (m *Mask) UnmarshalText(text []byte) error {
	s := string(text)
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || len(digits) == 0 || len(digits) > 32 {
		return fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}

	var hiDigits string
	loDigits := digits
	if len(digits) > 16 {
		hiDigits, loDigits = digits[:len(digits)-16], digits[len(digits)-16:]
	}

	lo, err := strconv.ParseUint(loDigits, 16, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}
	var hi uint64
	if hiDigits != "" {
		if hi, err = strconv.ParseUint(hiDigits, 16, 64); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMask, s)
		}
	}

	*m = NewMask(lo, hi)
	return nil
}

// Render returns a visual representation of the mask on a board of shape g,
// top rank first.
func (m Mask) Render(g Geometry) string {
	var sb strings.Builder
	for y := g.Height - 1; y >= 0; y-- {
		fmt.Fprintf(&sb, "%2d ", y+1)
		for x := 0; x < g.Width; x++ {
			if m.Has(Square(y*g.Width + x)) {
				sb.WriteString("1 ")
			} else {
				sb.WriteString(". ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("   ")
	for x := 0; x < g.Width; x++ {
		fmt.Fprintf(&sb, "%c ", 'a'+x)
	}
	sb.WriteString("\n")
	return sb.String()
}
