package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewpulse/internal/domain"
)

type memWindows map[string]time.Time

func (m memWindows) LastSynced(_ context.Context, b string, p domain.Platform) (time.Time, bool, error) {
	t, ok := m[b+"/"+string(p)]
	return t, ok, nil
}

func (m memWindows) MarkSynced(_ context.Context, b string, p domain.Platform, at time.Time) error {
	k := b + "/" + string(p)
	if at.After(m[k]) {
		m[k] = at
	}
	return nil
}

type brokenWindows struct{}

func (brokenWindows) LastSynced(context.Context, string, domain.Platform) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("db down")
}
func (brokenWindows) MarkSynced(context.Context, string, domain.Platform, time.Time) error {
	return errors.New("db down")
}

func TestWindowEnforcement(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	l := New(memWindows{}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	d, err := l.Check(ctx, "b1", domain.PlatformYelp, 24*time.Hour)
	if err != nil || !d.Allowed {
		t.Fatalf("first check must allow: %+v %v", d, err)
	}
	if _, err := l.Commit(ctx, "b1", domain.PlatformYelp); err != nil {
		t.Fatal(err)
	}

	now = t0.Add(time.Hour)
	d, _ = l.Check(ctx, "b1", domain.PlatformYelp, 24*time.Hour)
	if d.Allowed || !d.NextAvailableAt.Equal(t0.Add(24*time.Hour)) {
		t.Fatalf("expected rate limit until t0+24h, got %+v", d)
	}

	// other platform and other business are independent
	if d, _ := l.Check(ctx, "b1", domain.PlatformGoogle, 24*time.Hour); !d.Allowed {
		t.Fatal("google must not share yelp's window")
	}
	if d, _ := l.Check(ctx, "b2", domain.PlatformYelp, 24*time.Hour); !d.Allowed {
		t.Fatal("b2 must not share b1's window")
	}

	now = t0.Add(24 * time.Hour)
	if d, _ := l.Check(ctx, "b1", domain.PlatformYelp, 24*time.Hour); !d.Allowed {
		t.Fatal("window elapsed, must allow")
	}
}

func TestZeroWindowSkipsStore(t *testing.T) {
	l := New(brokenWindows{})
	d, err := l.Check(context.Background(), "b1", domain.PlatformReddit, 0)
	if err != nil || !d.Allowed {
		t.Fatalf("zero window must allow without reading: %+v %v", d, err)
	}
	if _, err := l.Check(context.Background(), "b1", domain.PlatformReddit, time.Minute); err == nil {
		t.Fatal("store errors must surface")
	}
}
