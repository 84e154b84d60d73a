package source

import (
	"io"
	"sync/atomic"
)

// CountingReader wraps a reader and tracks cumulative bytes read. The
// coordinator derives the compressed resume offset from it.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))

	return n, err
}

// Count returns the cumulative number of bytes read so far.
func (c *CountingReader) Count() int64 {
	return c.n.Load()
}
