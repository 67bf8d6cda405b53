package tablefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/hailam/taflmagic/internal/magic"
)

// CompressedExt selects zstd compression in Save and Load.
const CompressedExt = ".zst"

// Compressed reports whether path names a zstd-compressed table.
func Compressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

// Save writes t to path, compressing when path ends in ".zst". The file is
// written to a temporary name first, so a failed save leaves no partial file.
func Save(path string, t *magic.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrIO, dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %w", ErrIO, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := write(f, t, Compressed(path)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: failed to rename %s: %w", ErrIO, tmp, err)
	}
	return nil
}

func write(f *os.File, t *magic.Table, compress bool) error {
	bw := bufio.NewWriter(f)
	var w io.Writer = bw

	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("%w: failed to create compressor: %w", ErrIO, err)
		}
		w = enc
	}

	if err := Encode(w, t); err != nil {
		if enc != nil {
			enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("%w: failed to finish compression: %w", ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: failed to flush: %w", ErrIO, err)
	}
	return nil
}

// Load reads a table written by Save. A missing or unreadable file wraps
// ErrIO (and os.ErrNotExist where applicable); corrupt content wraps ErrFormat.
func Load(path string) (*magic.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open table: %w", ErrIO, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if Compressed(path) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decompress %s: %w", ErrFormat, path, err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		if Compressed(path) && !isPathError(err) {
			// A broken zstd stream is corrupt content, not an I/O failure.
			return nil, fmt.Errorf("%w: failed to decompress %s: %w", ErrFormat, path, err)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, path, err)
	}
	return Unmarshal(data)
}

func isPathError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

// MarshalCompressed returns the zstd-compressed JSON encoding of t.
func MarshalCompressed(t *magic.Table) ([]byte, error) {
	data, err := Marshal(t)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create compressor: %w", ErrIO, err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/8)), nil
}

// UnmarshalCompressed reverses MarshalCompressed.
func UnmarshalCompressed(data []byte) (*magic.Table, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create decompressor: %w", ErrIO, err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress: %w", ErrFormat, err)
	}
	return Unmarshal(raw)
}
