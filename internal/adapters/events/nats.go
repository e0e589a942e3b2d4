// Package events publishes finished sync runs on NATS so other services
// (dashboard notifications, digests) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"reviewpulse/internal/domain"
)

const DefaultSubject = "reviews.sync.completed"

// headerCarrier lets the OTel propagator read and write nats.Msg headers.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher implements domain.EventPublisher. A nil *Publisher drops events.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Connect dials url; an empty url disables publishing.
func Connect(url, subject string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url, nats.Name("reviewpulse"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewPublisher(nc, subject), nil
}

func (p *Publisher) PublishSyncRun(ctx context.Context, run domain.SyncRun) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: p.subject + "." + string(run.Platform), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return p.nc.PublishMsg(msg)
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

// SubscribeSyncRuns delivers decoded runs published under subject.*.
// Malformed messages are dropped.
func SubscribeSyncRuns(nc *nats.Conn, subject string, fn func(context.Context, domain.SyncRun)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return nc.Subscribe(subject+".*", func(msg *nats.Msg) {
		var run domain.SyncRun
		if err := json.Unmarshal(msg.Data, &run); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		fn(ctx, run)
	})
}
