package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/synctest"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/session"
)

func newRegistry(ttl time.Duration) *session.Registry {
	cfg := &config.Config{}
	cfg.Session.TTL = ttl

	return session.New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, nil)
}

func TestPutGetDelete(t *testing.T) {
	reg := newRegistry(time.Hour)
	ctx := context.Background()

	if err := reg.Put(ctx, nil); !errors.Is(err, errs.ErrSessionNil) {
		t.Fatalf("Put(nil) error = %v, want %v", err, errs.ErrSessionNil)
	}

	sess := &entity.Session{
		DownloadID: "abc",
		URL:        "https://facebook.com/video/123",
		FormatIDs:  []string{"hd"},
	}

	if err := reg.Put(ctx, sess); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	sess.FormatIDs[0] = "mutated"

	got, ok := reg.Get(ctx, "abc")
	if !ok {
		t.Fatal("Get() found nothing")
	}

	if got.URL != sess.URL || got.FormatIDs[0] != "hd" {
		t.Errorf("Get() = %+v, want stored copy", got)
	}

	if got.CreatedAt.IsZero() || got.ExpiresAt.Sub(got.CreatedAt) != time.Hour {
		t.Errorf("timestamps not stamped: created %v expires %v", got.CreatedAt, got.ExpiresAt)
	}

	if _, ok := reg.Get(ctx, "missing"); ok {
		t.Error("Get(missing) found a session")
	}

	reg.Delete(ctx, "abc")
	reg.Delete(ctx, "abc")

	if _, ok := reg.Get(ctx, "abc"); ok || reg.Len() != 0 {
		t.Errorf("session survived Delete(), len = %d", reg.Len())
	}
}

func TestExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := newRegistry(time.Hour)
		ctx, cancel := context.WithCancel(t.Context())

		_ = reg.Put(ctx, &entity.Session{DownloadID: "old", URL: "https://fb.watch/a"})

		time.Sleep(30 * time.Minute)

		_ = reg.Put(ctx, &entity.Session{DownloadID: "new", URL: "https://fb.watch/b"})

		done := make(chan struct{})

		go func() {
			reg.CleanupExpired(ctx, 5*time.Minute)
			close(done)
		}()

		// old expires at 60m, the ticker first fires after it at 65m
		time.Sleep(31 * time.Minute)

		if _, ok := reg.Get(ctx, "old"); ok {
			t.Error("Get() returned an expired session")
		}

		time.Sleep(5 * time.Minute)
		synctest.Wait()

		if reg.Len() != 1 {
			t.Errorf("Len() = %d after eviction, want 1", reg.Len())
		}

		if _, ok := reg.Get(ctx, "new"); !ok {
			t.Error("live session was evicted")
		}

		cancel()
		<-done
	})
}

func TestNoTTLNeverExpires(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := newRegistry(0)

		_ = reg.Put(t.Context(), &entity.Session{DownloadID: "abc"})

		time.Sleep(24 * time.Hour)

		if n := reg.EvictExpired(t.Context()); n != 0 {
			t.Errorf("EvictExpired() = %d, want 0", n)
		}

		if _, ok := reg.Get(t.Context(), "abc"); !ok {
			t.Error("session without ttl expired")
		}
	})
}
