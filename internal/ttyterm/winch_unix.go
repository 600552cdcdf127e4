//go:build !windows

package ttyterm

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// notifyResize calls fn on every SIGWINCH until stop is called.
func notifyResize(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
