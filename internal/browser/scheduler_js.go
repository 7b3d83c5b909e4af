//go:build js && wasm

package browser

import (
	"syscall/js"
	"time"
)

// IdleScheduler runs callbacks through requestIdleCallback with a timeout
// ceiling so busy pages cannot starve detection.
type IdleScheduler struct{}

// NewIdleScheduler returns nil when the browser lacks requestIdleCallback.
func NewIdleScheduler() *IdleScheduler {
	if js.Global().Get("requestIdleCallback").Type() != js.TypeFunction {
		return nil
	}
	return &IdleScheduler{}
}

// Schedule queues fn for the next idle period. fn runs on its own
// goroutine so it may block without stalling the JS event loop.
func (s *IdleScheduler) Schedule(fn func(), timeout time.Duration) {
	var cb js.Func
	cb = js.FuncOf(func(js.Value, []js.Value) any {
		cb.Release()
		go fn()
		return nil
	})
	opts := js.Global().Get("Object").New()
	opts.Set("timeout", timeout.Milliseconds())
	js.Global().Call("requestIdleCallback", cb, opts)
}
