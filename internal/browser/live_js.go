//go:build js && wasm

package browser

import (
	"strings"
	"syscall/js"

	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

// Live returns globalThis and document. Both are nil when the page has no
// window, for example inside a worker. Property access goes through
// syscall/js and may panic on hostile getters; the scoring engine recovers.
func Live() (signal.Environment, signal.Document) {
	global := js.Global()
	if isNullish(global.Get("window")) {
		return nil, nil
	}
	env := globalEnv{root: global}

	doc := global.Get("document")
	if isNullish(doc) {
		return env, nil
	}
	return env, liveDocument{doc: doc}
}

func isNullish(v js.Value) bool {
	return v.IsUndefined() || v.IsNull()
}

type globalEnv struct {
	root js.Value
}

func (g globalEnv) resolve(path string) (js.Value, bool) {
	v := g.root
	for _, part := range strings.Split(path, ".") {
		if isNullish(v) {
			return js.Undefined(), false
		}
		t := v.Type()
		if t != js.TypeObject && t != js.TypeFunction {
			return js.Undefined(), false
		}
		v = v.Get(part)
	}
	return v, !isNullish(v)
}

func (g globalEnv) Has(path string) bool {
	_, ok := g.resolve(path)
	return ok
}

// Len understands Map and Set (size), arrays (length) and plain objects
// (own enumerable keys).
func (g globalEnv) Len(path string) int {
	v, ok := g.resolve(path)
	if !ok || v.Type() != js.TypeObject {
		return 0
	}
	if size := v.Get("size"); size.Type() == js.TypeNumber {
		return size.Int()
	}
	if length := v.Get("length"); length.Type() == js.TypeNumber {
		return length.Int()
	}
	return js.Global().Get("Object").Call("keys", v).Length()
}

type liveDocument struct {
	doc js.Value
}

func (d liveDocument) ScriptSources() []string {
	nodes := d.doc.Call("querySelectorAll", "script[src]")
	n := nodes.Length()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if src := nodes.Index(i).Get("src"); src.Type() == js.TypeString {
			out = append(out, src.String())
		}
	}
	return out
}

func (d liveDocument) Has(selector string) bool {
	return !isNullish(d.doc.Call("querySelector", selector))
}
