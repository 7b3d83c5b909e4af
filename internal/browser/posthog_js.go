//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/fyrsmithlabs/stackprobe/internal/sink"
)

var errNoPostHog = errors.New("window.posthog unavailable")

// PostHogClient is a sink.Client over the page's window.posthog instance.
// The host owns the instance; this client only reads readiness and calls
// capture and setPersonProperties.
type PostHogClient struct{}

var _ sink.Client = PostHogClient{}

func (PostHogClient) instance() js.Value {
	return js.Global().Get("posthog")
}

// IsReady reports whether posthog is loaded and has a distinct id.
func (c PostHogClient) IsReady() bool {
	ph := c.instance()
	if isNullish(ph) || ph.Get("get_distinct_id").Type() != js.TypeFunction {
		return false
	}
	id := ph.Call("get_distinct_id")
	return id.Type() == js.TypeString && id.String() != ""
}

func (c PostHogClient) CaptureEvent(_ context.Context, name string, props sink.EventProperties) error {
	ph := c.instance()
	if isNullish(ph) {
		return errNoPostHog
	}
	obj, err := toJSObject(props)
	if err != nil {
		return err
	}
	ph.Call("capture", name, obj)
	return nil
}

func (c PostHogClient) SetProfileTraits(_ context.Context, traits sink.ProfileTraits) error {
	ph := c.instance()
	if isNullish(ph) {
		return errNoPostHog
	}
	obj, err := toJSObject(traits)
	if err != nil {
		return err
	}
	ph.Call("setPersonProperties", obj)
	return nil
}

// toJSObject converts through JSON so struct tags define the property
// names.
func toJSObject(v any) (js.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return js.Undefined(), fmt.Errorf("marshal payload: %w", err)
	}
	return js.Global().Get("JSON").Call("parse", string(data)), nil
}
