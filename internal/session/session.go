// Package session keeps the in-memory download id -> source URL registry.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
)

// Registry stores sessions until they expire or are deleted.
type Registry struct {
	log     *slog.Logger
	ttl     time.Duration
	metrics *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*entity.Session
}

// New creates an empty registry. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Registry {
	return &Registry{
		log:      log.With(slog.String("package", "session")),
		ttl:      cfg.Session.TTL,
		metrics:  metrics,
		sessions: make(map[string]*entity.Session),
	}
}

// Put stores a copy of sess, stamping CreatedAt and ExpiresAt when unset.
func (r *Registry) Put(ctx context.Context, sess *entity.Session) error {
	if sess == nil {
		return errs.ErrSessionNil
	}

	stored := clone(sess)

	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	if stored.ExpiresAt.IsZero() && r.ttl > 0 {
		stored.ExpiresAt = stored.CreatedAt.Add(r.ttl)
	}

	r.mu.Lock()
	r.sessions[stored.DownloadID] = stored
	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetSessions(count)

	r.log.DebugContext(ctx, "session stored", slog.Any("session", stored))

	return nil
}

// Get returns a copy of the live session for id.
func (r *Registry) Get(_ context.Context, id string) (*entity.Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok || sess.Expired(time.Now()) {
		return nil, false
	}

	return clone(sess), true
}

// Delete drops the session for id, if any.
func (r *Registry) Delete(ctx context.Context, id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.metrics.SetSessions(count)
		r.log.DebugContext(ctx, "session deleted", slog.String("download_id", id))
	}
}

// Len returns the number of stored sessions, expired ones included until evicted.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CleanupExpired evicts expired sessions every interval until ctx is done.
func (r *Registry) CleanupExpired(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.log.InfoContext(ctx, "session cleanup disabled")

		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := r.log.With(slog.String("action", "cleanup_expired_sessions"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if n := r.EvictExpired(ctx); n > 0 {
				log.InfoContext(ctx, "expired sessions evicted", slog.Int("count", n))
			}
		case <-ctx.Done():
			log.Info("session cleanup stopped")

			return
		}
	}
}

// EvictExpired removes every expired session and returns how many were removed.
func (r *Registry) EvictExpired(_ context.Context) int {
	now := time.Now()

	r.mu.Lock()

	evicted := 0

	for id, sess := range r.sessions {
		if sess.Expired(now) {
			delete(r.sessions, id)
			evicted++
		}
	}

	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.RecordSessionsExpired(evicted)
	r.metrics.SetSessions(count)

	return evicted
}

func clone(sess *entity.Session) *entity.Session {
	out := *sess
	out.FormatIDs = slices.Clone(sess.FormatIDs)

	return &out
}
