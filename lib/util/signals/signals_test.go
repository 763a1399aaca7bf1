//go:build !windows

package signals

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatchReloadDoesNotStop(t *testing.T) {
	reloads := 0
	w := NewWatcher(func() { reloads++ })
	defer w.Stop()

	assert.False(t, w.dispatch(syscall.SIGHUP))
	assert.Equal(t, 1, reloads)
	assert.True(t, w.dispatch(syscall.SIGTERM))
	assert.True(t, w.dispatch(syscall.SIGINT))
	assert.Equal(t, 1, reloads)
}

func TestWaitReturnsOnInterrupt(t *testing.T) {
	w := NewWatcher(nil)
	defer w.Stop()
	go func() {
		w.ch <- syscall.SIGHUP
		w.ch <- syscall.SIGTERM
	}()

	assert.Equal(t, syscall.SIGTERM, w.Wait(context.Background()))
}

func TestWaitReturnsOnStopAndContext(t *testing.T) {
	w := NewWatcher(nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Stop()
	}()
	assert.Nil(t, w.Wait(context.Background()))
	w.Stop()

	w2 := NewWatcher(nil)
	defer w2.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, w2.Wait(ctx))
}
