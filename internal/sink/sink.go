// Package sink hands detected traits to an analytics client.
//
// Payloads are built from explicit projections of scoring.Traits. Neither
// EventProperties nor ProfileTraits has a field for debug output, so the
// debug trace cannot reach a client regardless of what the caller passes in.
package sink

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
)

// EventName is the analytics event fired once per session.
const EventName = "tech_stack_detected"

// ProfilePrefix namespaces profile traits on the identity.
const ProfilePrefix = "tech_stack_"

// Client is the analytics service contract. Implementations are owned by
// the host; the adapter never configures or closes them.
type Client interface {
	// IsReady reports whether the client has an established identity.
	IsReady() bool
	CaptureEvent(ctx context.Context, name string, props EventProperties) error
	SetProfileTraits(ctx context.Context, traits ProfileTraits) error
}

// EventProperties is the tech_stack_detected payload.
type EventProperties struct {
	FrameworkPrimary string   `json:"framework_primary"`
	FrameworkMeta    []string `json:"framework_meta,omitempty"`
	StateManagement  []string `json:"state_management"`
	DataLayer        []string `json:"data_layer"`
	Confidence       string   `json:"confidence"`
	DetectorVersion  string   `json:"detector_version"`
}

// ProfileTraits are person-level properties with arrays flattened to
// comma-joined strings.
type ProfileTraits struct {
	FrameworkPrimary string `json:"tech_stack_framework_primary"`
	FrameworkMeta    string `json:"tech_stack_framework_meta"`
	StateManagement  string `json:"tech_stack_state_management"`
	DataLayer        string `json:"tech_stack_data_layer"`
	Confidence       string `json:"tech_stack_confidence"`
	DetectorVersion  string `json:"tech_stack_detector_version"`
}

// NewEventProperties projects traits onto the event payload.
func NewEventProperties(t scoring.Traits) EventProperties {
	return EventProperties{
		FrameworkPrimary: t.FrameworkPrimary,
		FrameworkMeta:    nonNil(t.FrameworkMeta, true),
		StateManagement:  nonNil(t.StateManagement, false),
		DataLayer:        nonNil(t.DataLayer, false),
		Confidence:       string(t.Confidence),
		DetectorVersion:  t.Version,
	}
}

// NewProfileTraits projects traits onto profile properties.
func NewProfileTraits(t scoring.Traits) ProfileTraits {
	return ProfileTraits{
		FrameworkPrimary: t.FrameworkPrimary,
		FrameworkMeta:    strings.Join(t.FrameworkMeta, ","),
		StateManagement:  strings.Join(t.StateManagement, ","),
		DataLayer:        strings.Join(t.DataLayer, ","),
		Confidence:       string(t.Confidence),
		DetectorVersion:  t.Version,
	}
}

// Map returns the traits keyed by their prefixed names.
func (p ProfileTraits) Map() map[string]string {
	return map[string]string{
		ProfilePrefix + "framework_primary": p.FrameworkPrimary,
		ProfilePrefix + "framework_meta":    p.FrameworkMeta,
		ProfilePrefix + "state_management":  p.StateManagement,
		ProfilePrefix + "data_layer":        p.DataLayer,
		ProfilePrefix + "confidence":        p.Confidence,
		ProfilePrefix + "detector_version":  p.DetectorVersion,
	}
}

func nonNil(in []string, allowNil bool) []string {
	if len(in) == 0 {
		if allowNil {
			return nil
		}
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Result is the outcome of one SendTraits call.
type Result string

// Delivery outcomes returned by SendTraits and reported to the
// DeliveryRecorder.
const (
	ResultSent     = "sent"
	ResultNotReady = "not_ready"
	ResultError    = "error"
)

// DeliveryRecorder counts delivery outcomes.
type DeliveryRecorder interface {
	RecordDelivery(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDelivery(string) {}

// Adapter sends traits to a Client. Sends are fire-and-forget: nothing is
// queued or retried.
type Adapter struct {
	client   Client
	logger   *logging.Logger
	recorder DeliveryRecorder
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder sets the delivery counter.
func WithRecorder(r DeliveryRecorder) Option {
	return func(a *Adapter) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewAdapter creates an adapter over client. A nil client is never ready.
func NewAdapter(client Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:   client,
		logger:   logging.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SendTraits fires the detection event and sets profile traits, and
// reports whether both reached the client. Failures and panics from the
// client are contained; when debug is set they are logged.
func (a *Adapter) SendTraits(ctx context.Context, traits scoring.Traits, debug bool) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = ResultError
			a.debugLog(ctx, debug, "analytics client panicked", zap.String("panic", fmt.Sprint(r)))
		}
		a.recorder.RecordDelivery(string(result))
	}()

	if a.client == nil || !a.client.IsReady() {
		a.debugLog(ctx, debug, "analytics client not ready, dropping traits")
		return ResultNotReady
	}

	if err := a.client.CaptureEvent(ctx, EventName, NewEventProperties(traits)); err != nil {
		a.debugLog(ctx, debug, "capture event failed", zap.Error(err))
		return ResultError
	}
	if err := a.client.SetProfileTraits(ctx, NewProfileTraits(traits)); err != nil {
		a.debugLog(ctx, debug, "set profile traits failed", zap.Error(err))
		return ResultError
	}

	a.debugLog(ctx, debug, "tech stack traits sent",
		zap.String("framework_primary", traits.FrameworkPrimary),
		zap.String("confidence", string(traits.Confidence)))
	return ResultSent
}

func (a *Adapter) debugLog(ctx context.Context, debug bool, msg string, fields ...zap.Field) {
	if debug {
		a.logger.Debug(ctx, msg, fields...)
	}
}
