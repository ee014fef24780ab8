package agentconn

import (
	"errors"
	"io"
)

// ErrStreamLimit reports that a single line from the agent exceeded the
// configured cap. The connection is unrecoverable at that point since
// framing is lost.
var ErrStreamLimit = errors.New("agent stream line exceeds limit")

// lineGuard passes reads through while enforcing a per-line byte cap,
// mirroring the bounded stream reader used on the agent's stdio.
type lineGuard struct {
	r       io.Reader
	limit   int
	current int
}

func newLineGuard(r io.Reader, limit int) *lineGuard {
	return &lineGuard{r: r, limit: limit}
}

func (g *lineGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	for _, b := range p[:n] {
		if b == '\n' {
			g.current = 0
			continue
		}
		g.current++
		if g.current > g.limit {
			return n, ErrStreamLimit
		}
	}
	return n, err
}
