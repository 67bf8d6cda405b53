package tablefile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/taflmagic/internal/board"
	"github.com/hailam/taflmagic/internal/magic"
)

func buildTable(t *testing.T) (*magic.Table, *board.Orthogonal) {
	t.Helper()
	g := board.Geometry{Width: 5, Height: 5}
	oracle, err := board.NewOrthogonal(g, board.TaflRestricted(g))
	require.NoError(t, err)

	b := magic.NewBuilder(oracle)
	b.Seed = 42
	table, err := b.Build(context.Background())
	require.NoError(t, err)
	return table, oracle
}

func record(t *testing.T, table *magic.Table) *Record {
	t.Helper()
	data, err := Marshal(table)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	return &rec
}

func remarshal(t *testing.T, rec *Record) []byte {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data
}

func assertSameTable(t *testing.T, want, got *magic.Table) {
	t.Helper()
	assert.Equal(t, want.Geometry(), got.Geometry())
	assert.Equal(t, want.BuildID(), got.BuildID())
	assert.Equal(t, want.Entries(), got.Entries())
	assert.Equal(t, want.Attacks(), got.Attacks())
	assert.Equal(t, want.Restricted(), got.Restricted())
}

func TestRoundTrip(t *testing.T) {
	table, oracle := buildTable(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, table))

	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assertSameTable(t, table, loaded)
	require.NoError(t, loaded.Verify(oracle))
}

func TestRecordLayout(t *testing.T) {
	table, _ := buildTable(t)
	rec := record(t, table)

	assert.Equal(t, Version, rec.Version)
	assert.Equal(t, board.Geometry{Width: 5, Height: 5}, rec.Board)
	assert.Equal(t, table.Restricted(), rec.Restricted)
	assert.Len(t, rec.Magics, 25)
	assert.Len(t, rec.Offsets, 25)
	assert.Len(t, rec.Shifts, 25)
	assert.Len(t, rec.Masks, 25)
	assert.Len(t, rec.Attacks, table.Len())

	for i, e := range table.Entries() {
		assert.Equal(t, e.Magic, rec.Magics[i])
		assert.Equal(t, e.Offset, rec.Offsets[i])
		assert.Equal(t, int(e.Shift), rec.Shifts[i])
		assert.Equal(t, e.Mask, rec.Masks[i])
	}

	// Masks are written as hex strings and shifts as plain numbers.
	var raw map[string]json.RawMessage
	data, err := Marshal(table)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, string(raw["magics"]), `"0x`)
	assert.Equal(t, byte('['), raw["shifts"][0])
}

func TestRestrictedSquaresPersist(t *testing.T) {
	table, oracle := buildTable(t)
	require.False(t, oracle.Restricted().IsEmpty())

	data, err := Marshal(table)
	require.NoError(t, err)
	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, oracle.Restricted(), loaded.Restricted())

	// The loaded table alone is enough to rebuild its oracle.
	rebuilt, err := board.NewOrthogonal(loaded.Geometry(), loaded.Restricted())
	require.NoError(t, err)
	require.NoError(t, loaded.Verify(rebuilt))

	unrestricted, err := board.NewOrthogonal(loaded.Geometry(), board.Empty)
	require.NoError(t, err)
	assert.ErrorIs(t, loaded.Verify(unrestricted), magic.ErrMismatch)
}

func TestRecordWithoutRestricted(t *testing.T) {
	g := board.Geometry{Width: 5, Height: 5}
	oracle, err := board.NewOrthogonal(g, board.Empty)
	require.NoError(t, err)
	b := magic.NewBuilder(oracle)
	b.Seed = 7
	table, err := b.Build(context.Background())
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	data, err := Marshal(table)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	delete(raw, "restricted")
	data, err = json.Marshal(raw)
	require.NoError(t, err)

	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, loaded.Restricted().IsEmpty())
	require.NoError(t, loaded.Verify(oracle))
}

func TestTruncatedAttacks(t *testing.T) {
	table, _ := buildTable(t)
	rec := record(t, table)
	rec.Attacks = rec.Attacks[:len(rec.Attacks)-1]

	loaded, err := Unmarshal(remarshal(t, rec))
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, magic.ErrInvalidTable)
	assert.False(t, errors.Is(err, ErrIO))
	assert.Nil(t, loaded)
}

func TestMalformedRecords(t *testing.T) {
	table, _ := buildTable(t)

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"short magics", func(r *Record) { r.Magics = r.Magics[1:] }},
		{"short offsets", func(r *Record) { r.Offsets = r.Offsets[1:] }},
		{"long shifts", func(r *Record) { r.Shifts = append(r.Shifts, 0) }},
		{"missing masks", func(r *Record) { r.Masks = nil }},
		{"shift out of range", func(r *Record) { r.Shifts[3] = 300 }},
		{"wrong shift", func(r *Record) { r.Shifts[3]++ }},
		{"shuffled offsets", func(r *Record) { r.Offsets[1], r.Offsets[2] = r.Offsets[2], r.Offsets[1] }},
		{"padded attacks", func(r *Record) { r.Attacks = append(r.Attacks, board.Empty) }},
		{"tampered attack", func(r *Record) { r.Attacks[0] = r.Attacks[0].Xor(board.MaskOf(1)) }},
		{"unsupported version", func(r *Record) { r.Version = 99 }},
		{"board too large", func(r *Record) { r.Board = board.Geometry{Width: 20, Height: 20} }},
		{"restricted off board", func(r *Record) { r.Restricted = r.Restricted.With(100) }},
		{"board mismatch", func(r *Record) { r.Board = board.Geometry{Width: 6, Height: 5} }},
		{"board overflow", func(r *Record) {
			r.Board = board.Geometry{Width: 1 << 32, Height: 1 << 32}
			r.Magics, r.Offsets, r.Shifts, r.Masks, r.Attacks = nil, nil, nil, nil, nil
			r.Checksum = Checksum(nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, table)
			tt.mutate(rec)
			loaded, err := Unmarshal(remarshal(t, rec))
			assert.ErrorIs(t, err, ErrFormat)
			assert.Nil(t, loaded)
		})
	}
}

func TestUnparsable(t *testing.T) {
	for _, data := range []string{"", "{", "[]", `{"magics": "nope"}`, `{"version":1,"magics":["0xzz"]}`} {
		_, err := Unmarshal([]byte(data))
		assert.ErrorIs(t, err, ErrFormat, "%q", data)
	}
}

func TestSaveLoadFile(t *testing.T) {
	table, oracle := buildTable(t)
	dir := t.TempDir()

	for _, name := range []string{"magics.json", "magics.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			require.NoError(t, Save(path, table))

			loaded, err := Load(path)
			require.NoError(t, err)
			assertSameTable(t, table, loaded)
			require.NoError(t, loaded.Verify(oracle))

			matches, err := filepath.Glob(filepath.Join(dir, "nested", "*.tmp-*"))
			require.NoError(t, err)
			assert.Empty(t, matches, "temporary files left behind")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, errors.Is(err, ErrFormat))
}

func TestLoadCorruptFile(t *testing.T) {
	table, _ := buildTable(t)
	dir := t.TempDir()

	plain := filepath.Join(dir, "magics.json")
	require.NoError(t, Save(plain, table))
	data, err := os.ReadFile(plain)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(plain, data[:len(data)/2], 0644))

	_, err = Load(plain)
	assert.ErrorIs(t, err, ErrFormat)
	assert.False(t, errors.Is(err, ErrIO))

	compressed := filepath.Join(dir, "magics.json.zst")
	require.NoError(t, os.WriteFile(compressed, []byte("not zstd at all"), 0644))
	_, err = Load(compressed)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCompressedBytes(t *testing.T) {
	table, _ := buildTable(t)

	data, err := MarshalCompressed(table)
	require.NoError(t, err)
	plain, err := Marshal(table)
	require.NoError(t, err)
	assert.Less(t, len(data), len(plain))

	loaded, err := UnmarshalCompressed(data)
	require.NoError(t, err)
	assertSameTable(t, table, loaded)

	_, err = UnmarshalCompressed(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestChecksumDependsOnContent(t *testing.T) {
	a := []board.Mask{board.MaskOf(1), board.MaskOf(100)}
	b := []board.Mask{board.MaskOf(100), board.MaskOf(1)}
	assert.NotEqual(t, Checksum(a), Checksum(b))
	assert.Equal(t, Checksum(a), Checksum(append([]board.Mask(nil), a...)))
	assert.Len(t, Checksum(nil), 16)
}
