package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLocker_Exclusive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLocker(rdb)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "gen:1:2", time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !mr.Exists("lock:gen:1:2") {
		t.Fatalf("lock key not written")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "gen:1:2", time.Minute); err == nil {
		t.Fatalf("second holder acquired a held lock")
	}

	// other keys are independent
	other, err := l.Lock(ctx, "gen:1:3", time.Minute)
	if err != nil {
		t.Fatalf("Lock other key: %v", err)
	}
	other()

	acquired := make(chan error, 1)
	go func() {
		u, err := l.Lock(ctx, "gen:1:2", time.Minute)
		if err == nil {
			u()
		}
		acquired <- err
	}()

	unlock()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired the released lock")
	}
	if mr.Exists("lock:gen:1:2") {
		t.Fatalf("lock key left behind after release")
	}
}

func TestRedisLocker_ReleaseOnlyByOwner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLocker(rdb)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	mr.FastForward(2 * time.Second)

	current, err := l.Lock(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Lock after expiry: %v", err)
	}

	// the expired holder must not release the new holder's lock
	stale()
	if !mr.Exists("lock:k") {
		t.Fatalf("stale unlock deleted another holder's lock")
	}

	current()
	if mr.Exists("lock:k") {
		t.Fatalf("owner unlock did not release")
	}
}

func TestRedisViewCounter_FlushPersistsViews(t *testing.T) {
	f := newFixture(t)
	mr, rdb := newTestRedis(t)
	counter := NewRedisViewCounter(rdb, f.courses)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := counter.RecordView(ctx, f.course.ID); err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}
	key := fmt.Sprintf("course:views:%d", f.course.ID)
	if v, _ := mr.Get(key); v != "3" {
		t.Fatalf("buffered views = %q, want 3", v)
	}

	flushed, err := counter.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if flushed != 3 {
		t.Fatalf("flushed = %d, want 3", flushed)
	}
	if mr.Exists(key) {
		t.Fatalf("counter not drained")
	}
	course, _ := f.courses.FindByID(ctx, f.course.ID)
	if course.ViewCount != 3 {
		t.Fatalf("viewCount = %d, want 3", course.ViewCount)
	}

	// nothing buffered: a second run is a no-op
	if flushed, err := counter.Flush(ctx); err != nil || flushed != 0 {
		t.Fatalf("second flush = %d, %v", flushed, err)
	}
}

func TestRedisViewCounter_RestoresViewsOnDBError(t *testing.T) {
	f := newFixture(t)
	mr, rdb := newTestRedis(t)
	counter := NewRedisViewCounter(rdb, f.courses)
	ctx := context.Background()

	counter.RecordView(ctx, f.course.ID)
	counter.RecordView(ctx, f.course.ID)

	if err := f.db.Exec("ALTER TABLE courses RENAME TO courses_moved").Error; err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := counter.Flush(ctx); err == nil {
		t.Fatalf("Flush succeeded without a courses table")
	}

	key := fmt.Sprintf("course:views:%d", f.course.ID)
	if v, _ := mr.Get(key); v != "2" {
		t.Fatalf("views after failed flush = %q, want 2 put back", v)
	}
}

func TestRedisViewCounter_CorruptCounterIsReported(t *testing.T) {
	f := newFixture(t)
	mr, rdb := newTestRedis(t)
	counter := NewRedisViewCounter(rdb, f.courses)

	mr.Set(fmt.Sprintf("course:views:%d", f.course.ID), "not-a-number")
	if _, err := counter.Flush(context.Background()); err == nil {
		t.Fatalf("unreadable counter was silently skipped")
	}
}
