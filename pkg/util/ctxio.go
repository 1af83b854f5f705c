package util

import (
	"context"
	"io"
)

// contextReader aborts a read loop as soon as its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader wraps r so that long copies honor cancellation between reads.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
