package simhost

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/eptri/core"
)

// Run starts h and c's Tick loops concurrently over the line.Loopback
// they were each constructed against, and blocks until ctx is
// cancelled or either loop reports an error. This is the harness an
// integration test drives: scripted transactions run against h and c
// via SendToken/SendData/SendHandshake/WaitPacket from a separate
// goroutine (or the test goroutine itself) while both loops are live,
// then cancel ctx to shut both down cleanly.
func Run(ctx context.Context, h *Host, c *core.Core) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(ctx) })
	g.Go(func() error { return c.Run(ctx) })
	return g.Wait()
}
