package session

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/voting"
)

// SubmitHint records the active leader's clue during the hint phase.
func (s *Service) SubmitHint(ctx context.Context, id, playerID, hint string, count int) error {
	hint = strings.TrimSpace(hint)
	if hint == "" || count < 0 || count > domain.BoardSize {
		return ErrInvalidHint
	}
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		if sess.Status != domain.StatusInProgress {
			return ErrNotInProgress
		}
		g := &sess.Game
		if !g.HintTurn {
			return ErrNotHintPhase
		}
		if l := g.Leader(g.TurnTeam); l == nil || l.ID != playerID {
			return ErrNotActiveLeader
		}
		g.Hint = hint
		g.HintCount = count
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("hint_submitted", zap.String("session_id", id), zap.Int("team", sess.Game.TurnTeam), zap.Int("count", count))
	s.publish(ctx, sess)
	return nil
}

func (s *Service) SubmitCardVote(ctx context.Context, id, voterID string, cardIndex int, add bool) error {
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		return voting.RecordCardVote(sess, voterID, cardIndex, add)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, sess)
	return nil
}

type RevealResult struct {
	CardIndex       int
	Color           domain.CardColor
	AlreadyRevealed bool
	TurnPassed      bool
	Finished        bool
	Session         *domain.Session
}

// RevealCard uncovers a cell and applies scoring. Re-revealing is a no-op for
// scoring but is still committed.
func (s *Service) RevealCard(ctx context.Context, id string, cardIndex int) (*RevealResult, error) {
	if cardIndex < 0 || cardIndex >= domain.BoardSize {
		return nil, ErrCardOutOfRange
	}
	var res RevealResult
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		res = RevealResult{CardIndex: cardIndex}
		if sess.Status != domain.StatusInProgress {
			return ErrNotInProgress
		}
		g := &sess.Game
		if cardIndex >= len(g.Cards) {
			return ErrCardOutOfRange
		}
		res.Color = g.Colors[cardIndex]
		if g.IsRevealed(cardIndex) {
			res.AlreadyRevealed = true
			return nil
		}
		out := applyReveal(sess, cardIndex)
		res.TurnPassed, res.Finished = out.turnPassed, out.finished
		if res.TurnPassed {
			g.PhaseStartedAt = s.now()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Session = sess

	s.logger.Info("card_revealed",
		zap.String("session_id", id),
		zap.Int("card", cardIndex),
		zap.String("color", res.Color.String()),
		zap.Bool("repeat", res.AlreadyRevealed),
		zap.Int("team0_score", sess.Game.Team0Score),
		zap.Int("team1_score", sess.Game.Team1Score))
	switch {
	case res.Finished:
		s.afterFinish(ctx, sess)
	case res.TurnPassed:
		s.timer.Schedule(id, sess.Game.TurnSeq, sess.Timing.PhaseDuration(&sess.Game))
	}
	s.publish(ctx, sess)
	return &res, nil
}

// ChangeTurn advances the phase on request and re-arms the timer for the new phase.
// A non-zero expectedSeq makes the request apply only to that turn; when the
// turn has already moved on, nothing changes and ChangeTurn reports false.
func (s *Service) ChangeTurn(ctx context.Context, id string, expectedSeq int64) (bool, error) {
	var changed, finished bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		changed, finished = false, false
		if sess.Status != domain.StatusInProgress {
			return ErrNotInProgress
		}
		if expectedSeq != 0 && sess.Game.TurnSeq != expectedSeq {
			return store.ErrNoChange
		}
		finished = advanceTurn(sess, s.now())
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Debug("turn_change_stale",
			zap.String("session_id", id),
			zap.Int64("expected_seq", expectedSeq),
			zap.Int64("turn_seq", sess.Game.TurnSeq))
		return false, nil
	}
	s.afterTurnChange(ctx, sess, finished, "explicit")
	return true, nil
}

func (s *Service) afterTurnChange(ctx context.Context, sess *domain.Session, finished bool, source string) {
	g := &sess.Game
	s.logger.Info("turn_changed",
		zap.String("session_id", sess.ID),
		zap.String("source", source),
		zap.Int("team", g.TurnTeam),
		zap.Bool("hint_turn", g.HintTurn),
		zap.Int64("turn_seq", g.TurnSeq))
	if finished {
		s.afterFinish(ctx, sess)
	} else if source == "explicit" {
		s.timer.Schedule(sess.ID, g.TurnSeq, sess.Timing.PhaseDuration(g))
	}
	s.publish(ctx, sess)
}

type revealOutcome struct {
	turnPassed bool
	finished   bool
}

// applyReveal marks idx revealed and applies scoring, hint countdown and end conditions.
func applyReveal(sess *domain.Session, idx int) revealOutcome {
	g := &sess.Game
	active := g.TurnTeam
	color := g.Colors[idx]
	g.Revealed = append(g.Revealed, idx)

	var out revealOutcome
	switch color {
	case domain.ColorForbidden:
		g.SetScore(1-active, domain.LossSentinelScore)
		finish(sess, 1-active, domain.ReasonForbidden)
		out.finished = true
		return out
	case domain.ColorTeam0, domain.ColorTeam1:
		owner := 0
		if color == domain.ColorTeam1 {
			owner = 1
		}
		g.AddScore(owner, 1)
		if g.RevealedOf(color) >= g.Allocated(color) {
			finish(sess, owner, domain.ReasonAllCards)
			out.finished = true
			return out
		}
		if owner != active {
			g.PassTurn()
			out.turnPassed = true
		}
	}
	if !out.turnPassed && g.HintCount > 0 {
		g.HintCount--
		if g.HintCount == 0 {
			g.PassTurn()
			out.turnPassed = true
		}
	}
	if out.turnPassed && roundLimitReached(sess) {
		finishOnRounds(sess)
		out.finished = true
	}
	return out
}

// advanceTurn applies one hint/guess transition and reports whether the round limit ended the game.
func advanceTurn(sess *domain.Session, now time.Time) bool {
	sess.Game.ChangeTurn()
	sess.Game.PhaseStartedAt = now
	if roundLimitReached(sess) {
		finishOnRounds(sess)
		return true
	}
	return false
}

func roundLimitReached(sess *domain.Session) bool {
	return sess.Timing.MaxRounds > 0 && sess.Game.Round >= sess.Timing.MaxRounds
}

func finishOnRounds(sess *domain.Session) {
	g := &sess.Game
	winner := domain.NoWinner
	switch {
	case g.Team0Score > g.Team1Score:
		winner = 0
	case g.Team1Score > g.Team0Score:
		winner = 1
	}
	finish(sess, winner, domain.ReasonMaxRounds)
}

func finish(sess *domain.Session, winner int, reason string) {
	sess.Status = domain.StatusFinished
	sess.Game.HintTurn = false
	sess.Game.GuessingTurn = false
	if sess.Game.Outcome == nil {
		sess.Game.Outcome = &domain.Outcome{Winner: winner, Reason: reason}
	}
}
