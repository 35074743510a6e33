package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

const (
	// StackTraceBufferSize is the buffer size for stack trace collection
	StackTraceBufferSize = 4096
)

// Recover logs a panic raised in the calling goroutine instead of crashing the process. It must be
// deferred. If logger is nil the panic is written to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		report(name, r, logger)
	}
}

// Go runs fn in a new goroutine guarded by Recover. The returned channel is closed when fn returns
// or panics.
func Go(name string, logger *zap.SugaredLogger, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover(name, logger)
		fn()
	}()
	return done
}

// Stack returns the stack of the calling goroutine.
func Stack() string {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func report(name string, r any, logger *zap.SugaredLogger) {
	stack := Stack()
	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", stack)
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n", name, r, stack)
}
