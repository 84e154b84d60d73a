package wikixml

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// pageMarker is the literal start of a page element. Angle brackets are
// entity-escaped inside element text in the dump, so the literal sequence
// only occurs at a real page boundary.
const pageMarker = "<page>"

// syntheticRoot re-opens the document root around a resumed tail. The real
// closing </mediawiki> at the end of the dump matches it, so an aligned
// resume stream is well-formed end to end.
const syntheticRoot = "<mediawiki>"

// realignReader discards bytes up to the next page element and then serves
// a synthetic root followed by the remainder of the stream.
type realignReader struct {
	src       *bufio.Reader
	out       io.Reader
	err       error
	discarded int64
}

func newRealignReader(r io.Reader) *realignReader {
	return &realignReader{src: bufio.NewReader(r)}
}

// Read implements io.Reader. The first call performs the alignment scan; a
// stream with no further page element yields a clean io.EOF.
func (r *realignReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	if r.out == nil {
		alignErr := r.align()
		if alignErr != nil {
			r.err = alignErr

			return 0, r.err
		}

		// The scan consumed the marker's leading '<'; re-emit it after the
		// synthetic root.
		r.out = io.MultiReader(strings.NewReader(syntheticRoot+"<"), r.src)
	}

	return r.out.Read(p)
}

// align consumes input until it has read the '<' of a page marker, with the
// rest of the marker verified via lookahead. Marker bytes split across
// internal buffer boundaries are handled by Peek's refill.
func (r *realignReader) align() error {
	rest := pageMarker[1:]

	for {
		b, err := r.src.ReadByte()
		if err != nil {
			return err
		}

		r.discarded++

		if b != '<' {
			continue
		}

		ahead, peekErr := r.src.Peek(len(rest))
		if peekErr != nil {
			if errors.Is(peekErr, io.EOF) {
				// Not enough bytes left for a page element.
				return io.EOF
			}

			return peekErr
		}

		if string(ahead) == rest {
			return nil
		}
	}
}

// sourceOffset maps a served-stream offset back onto the source stream.
// The served prefix is the synthetic root plus the re-emitted '<'; that '<'
// is the last discarded source byte, so from the end of the prefix onward
// served bytes and source bytes advance in lockstep.
func (r *realignReader) sourceOffset(streamOffset int64) int64 {
	prefix := int64(len(syntheticRoot) + 1)
	if streamOffset <= prefix {
		return r.discarded
	}

	return r.discarded + streamOffset - prefix
}
