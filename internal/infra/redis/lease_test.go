package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRunLeaseAcquireAndRelease(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lease, err := NewRunLease(rdb, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRunLease() error = %v", err)
	}

	token, ok, err := lease.Acquire(context.Background(), "reminder-dispatch")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok || token == "" {
		t.Fatalf("Acquire() = (%q, %v), want held lease", token, ok)
	}

	// A second run for the same job is skipped, not queued.
	_, ok, err = lease.Acquire(context.Background(), "reminder-dispatch")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second acquire should be rejected while the lease is held")
	}

	if err := lease.Release(context.Background(), "reminder-dispatch", token); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	_, ok, err = lease.Acquire(context.Background(), "reminder-dispatch")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if !ok {
		t.Fatal("lease should be acquirable after release")
	}
}

func TestRunLeaseJobsAreIndependent(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lease, err := NewRunLease(rdb, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRunLease() error = %v", err)
	}

	if _, ok, err := lease.Acquire(context.Background(), "reminder-dispatch"); err != nil || !ok {
		t.Fatalf("Acquire(dispatch) = (%v, %v)", ok, err)
	}
	if _, ok, err := lease.Acquire(context.Background(), "process-failed"); err != nil || !ok {
		t.Fatalf("Acquire(process-failed) = (%v, %v)", ok, err)
	}
}

func TestRunLeaseExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lease, err := NewRunLease(rdb, 5*time.Second)
	if err != nil {
		t.Fatalf("NewRunLease() error = %v", err)
	}

	if _, ok, err := lease.Acquire(context.Background(), "reminder-dispatch"); err != nil || !ok {
		t.Fatalf("Acquire() = (%v, %v)", ok, err)
	}

	mr.FastForward(6 * time.Second)

	if _, ok, err := lease.Acquire(context.Background(), "reminder-dispatch"); err != nil || !ok {
		t.Fatal("lease should be free after the TTL expires")
	}
}

func TestRunLeaseReleaseIgnoresStaleToken(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lease, err := NewRunLease(rdb, 30*time.Second)
	if err != nil {
		t.Fatalf("NewRunLease() error = %v", err)
	}

	token, ok, err := lease.Acquire(context.Background(), "reminder-dispatch")
	if err != nil || !ok {
		t.Fatalf("Acquire() = (%v, %v)", ok, err)
	}

	// A stale holder releasing with the wrong token must not free the
	// current run's lease.
	if err := lease.Release(context.Background(), "reminder-dispatch", "stale-token"); err != nil {
		t.Fatalf("Release(stale) error = %v", err)
	}

	_, ok, err = lease.Acquire(context.Background(), "reminder-dispatch")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("lease should still be held by the original token")
	}

	if err := lease.Release(context.Background(), "reminder-dispatch", token); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestNewRunLeaseValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRunLease(nil, 30*time.Second); err == nil {
		t.Fatal("expected error for nil client")
	}

	rdb := newTestRedisClient(t)
	if _, err := NewRunLease(rdb, 100*time.Millisecond); err == nil {
		t.Fatal("expected error for sub-second ttl")
	}
}
