package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"reviewpulse/internal/domain"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestPublishSyncRun_RoundTrip(t *testing.T) {
	nc := startNATS(t)

	got := make(chan domain.SyncRun, 1)
	sub, err := SubscribeSyncRuns(nc, "", func(_ context.Context, r domain.SyncRun) { got <- r })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	run := domain.SyncRun{ID: "run-1", BusinessID: "b1", Platform: domain.PlatformYelp, State: domain.StateDone, NewCount: 3}
	if err := NewPublisher(nc, "").PublishSyncRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	_ = nc.Flush()

	select {
	case r := <-got:
		if r.ID != "run-1" || r.NewCount != 3 || r.State != domain.StateDone {
			t.Fatalf("unexpected run %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.PublishSyncRun(context.Background(), domain.SyncRun{}); err != nil {
		t.Fatalf("nil publisher should drop silently: %v", err)
	}
	p.Close()

	p, err := Connect("", "")
	if err != nil || p != nil {
		t.Fatalf("empty url should disable publishing: %v %v", p, err)
	}
}

func TestHeaderCarrier(t *testing.T) {
	otel.SetTextMapPropagator(propagation.Baggage{})
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	if c.Get("x") != "" || len(c.Keys()) != 0 {
		t.Fatal("empty carrier should be empty")
	}
	c.Set("traceparent", "00-abc")
	if c.Get("traceparent") != "00-abc" || len(c.Keys()) != 1 {
		t.Fatalf("carrier did not store header: %v", msg.Header)
	}
}
