//go:build windows

package ttyterm

// notifyResize is a no-op: Windows consoles have no SIGWINCH.
func notifyResize(func()) (stop func()) {
	return func() {}
}
