// Package signals turns process signals into reload and shutdown events.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// Handler is a function called when a signal is received.
type Handler func()

// Watcher delivers reload signals to a reload handler and ends on the first
// interrupt signal.
type Watcher struct {
	ch       chan os.Signal
	onReload Handler
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWatcher starts receiving reload and interrupt signals. onReload may be nil.
func NewWatcher(onReload Handler) *Watcher {
	w := &Watcher{
		// buffered so a signal delivered while no receiver is ready is kept
		ch:       make(chan os.Signal, 1),
		onReload: onReload,
		stopped:  make(chan struct{}),
	}
	signal.Notify(w.ch, append(append([]os.Signal{}, interruptSignals...), reloadSignals...)...)
	return w
}

// Wait blocks until an interrupt signal arrives, ctx is done or Stop is
// called. It returns the interrupt signal, or nil otherwise.
func (w *Watcher) Wait(ctx context.Context) os.Signal {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopped:
			return nil
		case sig := <-w.ch:
			if w.dispatch(sig) {
				return sig
			}
		}
	}
}

// dispatch runs the handler for sig and reports whether sig is an interrupt.
func (w *Watcher) dispatch(sig os.Signal) bool {
	if isOneOf(sig, reloadSignals) {
		if w.onReload != nil {
			w.onReload()
		}
		return false
	}
	return isOneOf(sig, interruptSignals)
}

// Stop stops signal delivery and releases Wait. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		signal.Stop(w.ch)
		close(w.stopped)
	})
}

func isOneOf(sig os.Signal, set []os.Signal) bool {
	for _, s := range set {
		if s == sig {
			return true
		}
	}
	return false
}
