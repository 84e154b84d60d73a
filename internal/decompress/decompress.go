// Package decompress provides incremental decompression for the supported
// dump container formats. Readers stream block by block and never
// materialize the decompressed payload.
package decompress

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Format identifies the compression container of a source.
type Format int

// Supported formats.
const (
	FormatPlain Format = iota
	FormatBzip2
	FormatLZ4
	FormatGzip
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatBzip2:
		return "bzip2"
	case FormatLZ4:
		return "lz4"
	case FormatGzip:
		return "gzip"
	default:
		return "plain"
	}
}

// Container magic bytes, used to re-verify alignment when resuming at a raw
// compressed offset.
var (
	magicBzip2 = []byte("BZh")
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
	magicGzip  = []byte{0x1f, 0x8b}
)

// Detect infers the format from the location's file extension.
func Detect(location string) Format {
	trimmed := strings.TrimSuffix(location, "/")

	switch {
	case strings.HasSuffix(trimmed, ".bz2"):
		return FormatBzip2
	case strings.HasSuffix(trimmed, ".lz4"):
		return FormatLZ4
	case strings.HasSuffix(trimmed, ".gz"):
		return FormatGzip
	default:
		return FormatPlain
	}
}

// MagicLen returns the number of bytes CheckMagic needs for the format.
func MagicLen(f Format) int {
	switch f {
	case FormatBzip2:
		return len(magicBzip2)
	case FormatLZ4:
		return len(magicLZ4)
	case FormatGzip:
		return len(magicGzip)
	default:
		return 0
	}
}

// CheckMagic reports whether prefix starts a valid stream of the given
// format. Plain streams have no framing and always pass.
func CheckMagic(f Format, prefix []byte) bool {
	switch f {
	case FormatBzip2:
		return bytes.HasPrefix(prefix, magicBzip2)
	case FormatLZ4:
		return bytes.HasPrefix(prefix, magicLZ4)
	case FormatGzip:
		return bytes.HasPrefix(prefix, magicGzip)
	default:
		return true
	}
}

// NewReader returns an incremental decompressing reader over r. The stream
// ending exactly at a block boundary surfaces as a clean io.EOF.
func NewReader(r io.Reader, f Format) (io.Reader, error) {
	switch f {
	case FormatBzip2:
		return bzip2.NewReader(r), nil
	case FormatLZ4:
		return lz4.NewReader(r), nil
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}

		return gz, nil
	default:
		return r, nil
	}
}
