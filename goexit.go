package fiber

import "runtime"

// goexit terminates the calling goroutine, running its deferred calls first,
// without returning to its caller. Isolated in its own function so the
// intent at each Fiber.Exit call site reads as "this never returns" rather
// than bleeding a raw runtime.Goexit() call into fiber.go.
func goexit() {
	runtime.Goexit()
}
