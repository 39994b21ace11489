package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	release, err := s.AcquireLock(ctx, "vector_index:cosine")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// A second acquisition spins until its context expires.
	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := s.AcquireLock(shortCtx, "vector_index:cosine"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("concurrent AcquireLock = %v, want context.DeadlineExceeded", err)
	}

	// A different name is independent.
	other, err := s.AcquireLock(ctx, "simindex:near-dup")
	if err != nil {
		t.Fatalf("AcquireLock(other name) failed: %v", err)
	}
	other()

	release()
	again, err := s.AcquireLock(ctx, "vector_index:cosine")
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
	again()
}

func TestAcquireLockStaleTakeover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Simulate a crashed holder: acquire and never release, then backdate
	// the row past the stale horizon.
	if _, err := s.AcquireLock(ctx, "vector_index:cosine"); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	stale := time.Now().Add(-3 * time.Minute).Unix()
	if _, err := s.DB().Exec(`UPDATE store_locks SET locked_at = ?`, stale); err != nil {
		t.Fatalf("backdate lock failed: %v", err)
	}

	takeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	release, err := s.AcquireLock(takeCtx, "vector_index:cosine")
	if err != nil {
		t.Fatalf("stale takeover failed: %v", err)
	}
	release()
}
