package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// run owns connectivity for the session's lifetime. At any moment it is
// either reading one subscription (LIVE) or waiting on one ticker (POLLING),
// never both.
func (s *Session) run(ctx context.Context, sub attendance.Subscription) {
	defer close(s.done)

	for {
		if sub != nil {
			if !s.watch(ctx, sub) {
				return
			}
			sub = nil

			s.setMode(ModePolling)
			slog.Warn("push channel lost, polling",
				"session", s.id,
				"interval", s.pollInterval,
			)
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("refresh failed", "session", s.id, "error", err)
			}
		}

		sub = s.poll(ctx)
		if sub == nil {
			return
		}
		s.setMode(ModeLive)
	}
}

// watch refreshes on every matching event until the subscription ends.
// It returns false when ctx is done, true when the subscription was lost.
func (s *Session) watch(ctx context.Context, sub attendance.Subscription) bool {
	defer sub.Close()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			if !s.filter.Matches(ev) {
				continue
			}
			slog.Debug("change event",
				"session", s.id,
				"event", ev.ID,
				"editor", ev.Editor,
			)
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("refresh failed", "session", s.id, "error", err)
			}
		}
	}
}

// poll re-fetches on every tick and tries to resubscribe. It returns the new
// subscription, or nil when ctx is done.
//
// Subscribe comes before the re-fetch so a change landing in between is not
// missed.
func (s *Session) poll(ctx context.Context) attendance.Subscription {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		sub, subErr := s.backend.Subscribe(ctx, s.filter)
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("poll refresh failed", "session", s.id, "error", err)
		}

		if subErr != nil {
			slog.Debug("resubscribe failed", "session", s.id, "error", subErr)
			continue
		}
		if ctx.Err() != nil {
			sub.Close()
			return nil
		}
		return sub
	}
}
