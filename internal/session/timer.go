package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/turn"
)

var _ turn.Handler = (*Service)(nil)

// OnTurnTimer performs a timed phase change when the session is still on
// expectedSeq. A stale sequence writes nothing and re-arms for the live turn.
func (s *Service) OnTurnTimer(ctx context.Context, id string, expectedSeq int64) (turn.Plan, error) {
	var (
		changed  bool
		finished bool
		stop     bool
	)
	now := s.now()
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		changed, finished, stop = false, false, false
		if sess.Status != domain.StatusInProgress {
			stop = true
			return store.ErrNoChange
		}
		if sess.Game.TurnSeq != expectedSeq {
			return store.ErrNoChange
		}
		finished = advanceTurn(sess, now)
		changed = true
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			s.logger.Debug("turn_timer_session_gone", zap.String("session_id", id))
			return turn.Plan{Stop: true}, nil
		}
		return turn.Plan{}, err
	}
	if stop {
		return turn.Plan{Stop: true}, nil
	}
	if !changed {
		s.logger.Debug("turn_timer_stale",
			zap.String("session_id", id),
			zap.Int64("expected_seq", expectedSeq),
			zap.Int64("turn_seq", sess.Game.TurnSeq))
		return turn.Plan{Seq: sess.Game.TurnSeq, After: remaining(sess, now)}, nil
	}

	s.afterTurnChange(ctx, sess, finished, "timer")
	if finished {
		return turn.Plan{Stop: true}, nil
	}
	return turn.Plan{Seq: sess.Game.TurnSeq, After: sess.Timing.PhaseDuration(&sess.Game)}, nil
}

// remaining is what is left of the current phase at now.
func remaining(sess *domain.Session, now time.Time) time.Duration {
	d := sess.Timing.PhaseDuration(&sess.Game)
	if sess.Game.PhaseStartedAt.IsZero() {
		return d
	}
	left := d - now.Sub(sess.Game.PhaseStartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// ResumeScheduling re-arms timers for every running session, e.g. after a restart.
func (s *Service) ResumeScheduling(ctx context.Context) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, sess := range list {
		if sess.Status != domain.StatusInProgress {
			continue
		}
		s.timer.Schedule(sess.ID, sess.Game.TurnSeq, remaining(sess, now))
		n++
	}
	s.logger.Info("turn_timers_resumed", zap.Int("sessions", n))
	return n, nil
}

// SweepFinished deletes finished sessions past the grace period and empty
// lobbies that stayed idle longer than IdleTTL.
func (s *Service) SweepFinished(ctx context.Context) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var errs []error
	n := 0
	for _, sess := range list {
		if !s.expired(sess, now) {
			continue
		}
		s.timer.Cancel(sess.ID)
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
		s.logger.Info("session_swept",
			zap.String("session_id", sess.ID),
			zap.String("status", string(sess.Status)))
	}
	return n, errors.Join(errs...)
}

func (s *Service) expired(sess *domain.Session, now time.Time) bool {
	idle := now.Sub(sess.UpdatedAt)
	switch sess.Status {
	case domain.StatusFinished:
		return idle >= s.cfg.FinishedGrace
	case domain.StatusCreated:
		return sess.PlayerCount() == 0 && idle >= s.cfg.IdleTTL
	}
	return false
}
