package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a delivery is dropped by the limiter.
var ErrRateLimited = errors.New("sink: rate limited")

// NATSConfig configures a NATSClient.
type NATSConfig struct {
	// SubjectPrefix roots the subjects: <prefix>.events and <prefix>.profile.
	SubjectPrefix string
	// DistinctID is the analytics identity. The client is not ready without it.
	DistinctID string
	// RateLimit is deliveries per second; Burst is the bucket size.
	RateLimit float64
	Burst     int
}

// eventEnvelope is published on <prefix>.events.
type eventEnvelope struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	DistinctID string          `json:"distinct_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Properties EventProperties `json:"properties"`
}

// profileEnvelope is published on <prefix>.profile.
type profileEnvelope struct {
	DistinctID string        `json:"distinct_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Traits     ProfileTraits `json:"traits"`
}

// NATSClient publishes deliveries as JSON to NATS subjects.
//
// A delivery is one event followed by one profile update. The limiter is
// charged when the event is captured; the profile update that follows rides
// on the same token. Deliveries over the rate limit are dropped, never queued.
type NATSClient struct {
	nc         *nats.Conn
	distinctID string
	events     string
	profile    string
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewNATSClient creates a client over an existing connection. The
// connection stays owned by the caller.
func NewNATSClient(nc *nats.Conn, cfg NATSConfig) (*NATSClient, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if cfg.SubjectPrefix == "" {
		return nil, errors.New("subject prefix is required")
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &NATSClient{
		nc:         nc,
		distinctID: cfg.DistinctID,
		events:     cfg.SubjectPrefix + ".events",
		profile:    cfg.SubjectPrefix + ".profile",
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
	}, nil
}

// IsReady reports whether the connection is up and an identity is set.
func (c *NATSClient) IsReady() bool {
	return c.distinctID != "" && c.nc.IsConnected()
}

func (c *NATSClient) CaptureEvent(_ context.Context, name string, props EventProperties) error {
	if !c.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrRateLimited, c.events)
	}
	return c.publish(c.events, eventEnvelope{
		ID:         uuid.New().String(),
		Event:      name,
		DistinctID: c.distinctID,
		Timestamp:  c.now().UTC(),
		Properties: props,
	})
}

func (c *NATSClient) SetProfileTraits(_ context.Context, traits ProfileTraits) error {
	return c.publish(c.profile, profileEnvelope{
		DistinctID: c.distinctID,
		Timestamp:  c.now().UTC(),
		Traits:     traits,
	})
}

func (c *NATSClient) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
