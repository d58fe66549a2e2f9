package transfer

import "io"

// Progress is an observational per-block callback; it never affects
// control flow. total may be zero for empty files.
type Progress func(transferred, total int64)

// Percent converts transfer counters to a whole percentage, treating a
// zero-byte file as complete.
func Percent(transferred, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(transferred * 100 / total)
}

// countingReader reports progress as the underlying reader is consumed,
// starting from a resume offset.
type countingReader struct {
	r           io.Reader
	transferred int64
	total       int64
	progress    Progress
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.transferred += int64(n)
		if c.progress != nil {
			c.progress(c.transferred, c.total)
		}
	}
	return n, err
}
