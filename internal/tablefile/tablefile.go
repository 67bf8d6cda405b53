// Package tablefile persists magic tables as self-describing JSON records.
package tablefile

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/hailam/taflmagic/internal/board"
	"github.com/hailam/taflmagic/internal/magic"
)

// Version is the record layout written by Encode.
const Version = 1

var (
	// ErrFormat is returned for records that cannot be parsed or whose
	// arrays are inconsistent with each other or the declared board.
	ErrFormat = errors.New("malformed magic table")
	// ErrIO is returned when the underlying file or stream fails.
	ErrIO = errors.New("magic table i/o")
)

// Record is the persisted form of a magic table. Index i of Magics,
// Offsets, Shifts and Masks always describes Square(i). Restricted holds
// the squares the building oracle never reported as destinations; records
// without it were built unrestricted.
type Record struct {
	Version    int            `json:"version"`
	BuildID    string         `json:"build_id"`
	Board      board.Geometry `json:"board"`
	Restricted board.Mask     `json:"restricted"`
	Magics     []board.Mask   `json:"magics"`
	Offsets    []uint32       `json:"offsets"`
	Shifts     []int          `json:"shifts"`
	Masks      []board.Mask   `json:"masks"`
	Attacks    []board.Mask   `json:"attacks"`
	Checksum   string         `json:"checksum"`
}

// NewRecord flattens t into its persisted arrays.
func NewRecord(t *magic.Table) *Record {
	entries := t.Entries()
	r := &Record{
		Version:    Version,
		BuildID:    t.BuildID(),
		Board:      t.Geometry(),
		Restricted: t.Restricted(),
		Magics:     make([]board.Mask, len(entries)),
		Offsets:    make([]uint32, len(entries)),
		Shifts:     make([]int, len(entries)),
		Masks:      make([]board.Mask, len(entries)),
		Attacks:    t.Attacks(),
	}
	for i, e := range entries {
		r.Magics[i] = e.Magic
		r.Offsets[i] = e.Offset
		r.Shifts[i] = int(e.Shift)
		r.Masks[i] = e.Mask
	}
	r.Checksum = Checksum(r.Attacks)
	return r
}

// Table validates the record and rebuilds the table it describes.
func (r *Record) Table() (*magic.Table, error) {
	if r.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, r.Version)
	}
	if err := r.Board.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if extra := r.Restricted.AndNot(r.Board.Full()); !extra.IsEmpty() {
		return nil, fmt.Errorf("%w: restricted squares %s lie off the %s board", ErrFormat, extra, r.Board)
	}

	n := r.Board.Squares()
	arrays := []struct {
		name string
		len  int
	}{
		{"magics", len(r.Magics)},
		{"offsets", len(r.Offsets)},
		{"shifts", len(r.Shifts)},
		{"masks", len(r.Masks)},
	}
	for _, a := range arrays {
		if a.len != n {
			return nil, fmt.Errorf("%w: %s has %d entries, board %s has %d squares", ErrFormat, a.name, a.len, r.Board, n)
		}
	}

	entries := make([]magic.Entry, n)
	for i := range entries {
		if r.Shifts[i] < 0 || r.Shifts[i] > board.MaskBits {
			return nil, fmt.Errorf("%w: shift %d of square %d out of range", ErrFormat, r.Shifts[i], i)
		}
		entries[i] = magic.Entry{
			Mask:   r.Masks[i],
			Magic:  r.Magics[i],
			Shift:  uint8(r.Shifts[i]),
			Offset: r.Offsets[i],
		}
	}

	t, err := magic.NewTable(r.Board, entries, r.Attacks, r.BuildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if sum := Checksum(r.Attacks); sum != r.Checksum {
		return nil, fmt.Errorf("%w: attack checksum %s, record says %q", ErrFormat, sum, r.Checksum)
	}
	return t.WithRestricted(r.Restricted), nil
}

// Encode writes t to w as JSON.
func Encode(w io.Writer, t *magic.Table) error {
	if err := json.NewEncoder(w).Encode(NewRecord(t)); err != nil {
		return fmt.Errorf("%w: failed to write table: %w", ErrIO, err)
	}
	return nil
}

// Decode reads a table from r. Read failures wrap ErrIO; anything wrong
// with the content wraps ErrFormat.
func Decode(r io.Reader) (*magic.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read table: %w", ErrIO, err)
	}
	return Unmarshal(data)
}

// Marshal returns the JSON encoding of t.
func Marshal(t *magic.Table) ([]byte, error) {
	data, err := json.Marshal(NewRecord(t))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return data, nil
}

// Unmarshal parses a JSON record and rebuilds its table.
func Unmarshal(data []byte) (*magic.Table, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return rec.Table()
}

// Checksum returns the xxhash64 of the attack masks, little-endian low word
// first, as 16 hex digits.
func Checksum(attacks []board.Mask) string {
	d := xxhash.New()
	var buf [16]byte
	for _, m := range attacks {
		binary.LittleEndian.PutUint64(buf[:8], m.Lo())
		binary.LittleEndian.PutUint64(buf[8:], m.Hi())
		d.Write(buf[:])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
