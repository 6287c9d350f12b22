package schema

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Coalescer collapses concurrent inspections with the same sample size into
// one sampling battery. Nothing is cached once the battery completes.
//
// Callers sharing a battery receive the same *Summary and must not modify it.
type Coalescer struct {
	inspector Inspector
	group     singleflight.Group
}

// NewCoalescer wraps inspector.
func NewCoalescer(inspector Inspector) *Coalescer {
	return &Coalescer{inspector: inspector}
}

// Inspect joins an in-flight inspection for sampleSize or starts one. The
// battery runs detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done.
func (c *Coalescer) Inspect(ctx context.Context, sampleSize int) (*Summary, error) {
	ch := c.group.DoChan(strconv.Itoa(sampleSize), func() (any, error) {
		return c.inspector.Inspect(context.WithoutCancel(ctx), sampleSize)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Summary), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
