package gateway

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurstThenThrottle(t *testing.T) {
	l := NewTokenBucketLimiter(50, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait err: %v", err)
		}
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Fatalf("burst tokens should be immediate")
	}

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait err: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("third call should wait for a refill, took %s", elapsed)
	}
}

func TestTokenBucketRespectsContext(t *testing.T) {
	l := NewTokenBucketLimiter(0.01, 1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
