package parallel

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// World runs Size ranks as goroutines of one process. It stands in for a
// cluster launch: each rank gets its own Comm and owns its own arrays.
type World struct {
	size int
}

func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", size))
	}
	return &World{size: size}
}

func (w *World) Size() int { return w.size }

// RankError reports a failure on one rank, including recovered panics.
type RankError struct {
	Rank  int
	Err   error
	Stack []byte
}

func (e *RankError) Error() string {
	return fmt.Sprintf("rank %d: %v", e.Rank, e.Err)
}

func (e *RankError) Unwrap() error { return e.Err }

// Run executes fn on every rank and waits for all of them. The first rank
// to fail aborts the world: peers blocked in Receive return the context
// error. The returned error is the first failure.
func (w *World) Run(fn func(c Comm) error) error {
	return w.RunContext(context.Background(), fn)
}

func (w *World) RunContext(ctx context.Context, fn func(c Comm) error) error {
	g, gctx := errgroup.WithContext(ctx)
	boxes := make([]*mailbox, w.size)
	for n := range boxes {
		boxes[n] = newMailbox()
	}
	for n := 0; n < w.size; n++ {
		rc := &rankComm{
			ctx:   gctx,
			rank:  n,
			boxes: boxes,
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					err = &RankError{Rank: rc.rank, Err: perr, Stack: debug.Stack()}
				}
			}()
			if err = fn(rc); err != nil {
				return &RankError{Rank: rc.rank, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

type rankComm struct {
	ctx   context.Context
	rank  int
	boxes []*mailbox
}

func (rc *rankComm) Rank() int { return rc.rank }
func (rc *rankComm) Size() int { return len(rc.boxes) }

func (rc *rankComm) Send(dest, tag int, data any) error {
	if dest < 0 || dest >= len(rc.boxes) {
		return fmt.Errorf("rank %d: destination rank %d out of range [0,%d)",
			rc.rank, dest, len(rc.boxes))
	}
	if err := rc.ctx.Err(); err != nil {
		return err
	}
	rc.boxes[dest].post(msgKey{src: rc.rank, tag: tag}, data)
	return nil
}

func (rc *rankComm) Receive(src, tag int) (any, error) {
	if src < 0 || src >= len(rc.boxes) {
		return nil, fmt.Errorf("rank %d: source rank %d out of range [0,%d)",
			rc.rank, src, len(rc.boxes))
	}
	return rc.boxes[rc.rank].take(rc.ctx, msgKey{src: src, tag: tag})
}
