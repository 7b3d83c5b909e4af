//go:build js && wasm

package browser

import (
	"context"
	"errors"
	"syscall/js"

	"github.com/fyrsmithlabs/stackprobe/internal/dedup"
)

var errNoSessionStorage = errors.New("sessionStorage unavailable")

// SessionStorage is a dedup.Store over window.sessionStorage. Records
// expire with the tab. Access can throw (privacy modes, quota); the guard
// recovers those panics.
type SessionStorage struct{}

var _ dedup.Store = SessionStorage{}

func (SessionStorage) storage() (js.Value, error) {
	s := js.Global().Get("sessionStorage")
	if isNullish(s) {
		return js.Undefined(), errNoSessionStorage
	}
	return s, nil
}

func (ss SessionStorage) Get(_ context.Context, key string) ([]byte, error) {
	s, err := ss.storage()
	if err != nil {
		return nil, err
	}
	v := s.Call("getItem", key)
	if isNullish(v) {
		return nil, dedup.ErrNotFound
	}
	return []byte(v.String()), nil
}

func (ss SessionStorage) Set(_ context.Context, key string, value []byte) error {
	s, err := ss.storage()
	if err != nil {
		return err
	}
	s.Call("setItem", key, string(value))
	return nil
}

func (ss SessionStorage) Delete(_ context.Context, key string) error {
	s, err := ss.storage()
	if err != nil {
		return err
	}
	s.Call("removeItem", key)
	return nil
}
