package safe

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

// Group runs goroutines that share a cancelable context. A panic or an
// error in one of them cancels the rest; the first failure is kept.
type Group struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	errOnce sync.Once
	err     error
}

// New derives the group context from ctx.
func New(ctx context.Context, log *logger.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel, log: log.Named("safe")}
}

// Go starts fn under panic protection.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("panic recovered", zap.String("task", name), zap.Any("panic", r))
				g.fail(fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(g.ctx); err != nil && g.ctx.Err() == nil {
			g.log.Error("task failed", zap.String("task", name), zap.Error(err))
			g.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

func (g *Group) fail(err error) {
	g.errOnce.Do(func() { g.err = err })
	g.cancel()
}

// Stop cancels the group context.
func (g *Group) Stop() { g.cancel() }

// Wait blocks until every goroutine returned and reports the first failure.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()
	return g.err
}

// Context returns the group context.
func (g *Group) Context() context.Context { return g.ctx }
