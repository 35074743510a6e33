package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks fails the test if, once it finishes, more goroutines are running than when
// AssertNoLeaks was called. Call it first in tests that start servers or workers.
func AssertNoLeaks(t *testing.T) {
	t.Helper()
	AssertNoLeaksWithTimeout(t, 5*time.Second, 50*time.Millisecond)
}

// AssertNoLeaksWithTimeout is AssertNoLeaks with a custom grace period and polling interval.
func AssertNoLeaksWithTimeout(t *testing.T, timeout, pollInterval time.Duration) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		if WaitForGoroutineCount(before, timeout, pollInterval) {
			return
		}
		current := runtime.NumGoroutine()
		t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d (leaked %d)",
			before, current, current-before)

		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Logf("Active goroutines:\n%s", string(buf[:n]))
	})
}

// WaitForGoroutineCount waits until at most target goroutines are running. It reports whether
// the target was reached before timeout.
func WaitForGoroutineCount(target int, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if runtime.NumGoroutine() <= target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
