//go:build !(js && wasm)

package browser

import "github.com/fyrsmithlabs/stackprobe/internal/signal"

// Live returns the page environment. Outside the browser there is none.
func Live() (signal.Environment, signal.Document) {
	return nil, nil
}
