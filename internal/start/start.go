// Package start runs metad's top-level process lifecycle: install the
// interrupt handler, run the boot closure (registry + LogStore + RPC
// wiring), and give it stopTimeout to unwind before Start returns.
package start

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// StartFunc is metad's boot closure: build the registry, open its
// LogStore driver, bind the RPC service, then block until ctx is done.
type StartFunc func(ctx context.Context) error

// Start runs run until an interrupt arrives or run returns on its own,
// then gives it stopTimeout to finish unwinding (closing the LogStore
// driver, flushing logs) before forcing a return.
func Start(ctx context.Context, stopTimeout time.Duration, run StartFunc) error {
	notify := make(chan os.Signal, 3)
	signal.Notify(notify, os.Interrupt)
	ctx, cancel := context.WithCancel(ctx)
	once := &sync.Once{}
	fin := make(chan bool)
	unlock := func() {
		close(fin)
	}
	unlockOnce := func() {
		once.Do(unlock)
	}
	runErr := atomic.Value{}
	go func() {
		err := run(ctx)
		if err != nil {
			runErr.Store(err)
		}
		unlockOnce()
	}()
	select {
	case <-notify:
	case <-fin:
	}
	cancel()
	go func() {
		<-time.After(stopTimeout)
		unlockOnce()
	}()
	<-fin
	if err, ok := runErr.Load().(error); ok {
		return err
	}
	return nil
}

// RunAll runs each of metad's concurrent units (currently just the
// shutdown waiter; a future transport listener would join here) and
// returns the first error, canceling the rest via ctx.
func RunAll(ctx context.Context, runs ...func(ctx context.Context) error) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		group.Go(func() error { return run(ctx) })
	}

	return group.Wait()
}
