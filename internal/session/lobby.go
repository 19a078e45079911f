package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/voting"
)

// AddPlayer puts playerID on team. It returns false without error when the
// session is full or the player is already on a team.
func (s *Service) AddPlayer(ctx context.Context, id, playerID string, team int) (bool, error) {
	if team < 0 || team >= domain.TeamCount {
		return false, ErrInvalidTeam
	}
	player, err := s.identity.ResolvePlayer(ctx, playerID)
	if err != nil {
		return false, err
	}

	var joined bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		joined = false
		if sess.Status == domain.StatusFinished {
			return ErrSessionFinished
		}
		if t, _ := sess.TeamOf(player.ID); t >= 0 {
			return store.ErrNoChange
		}
		if sess.PlayerCount() >= sess.MaxPlayers {
			return store.ErrNoChange
		}
		t := &sess.Teams[team]
		t.Players = append(t.Players, player)
		t.Votes = append(t.Votes, 0)
		joined = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if joined {
		s.logger.Info("player_joined",
			zap.String("session_id", id),
			zap.String("player_id", player.ID),
			zap.Int("team", team),
			zap.Int("players", sess.PlayerCount()))
		s.publish(ctx, sess)
	}
	return joined, nil
}

// RemovePlayer drops playerID from whichever team holds it, together with its
// vote slot and any leader reference to it.
func (s *Service) RemovePlayer(ctx context.Context, id, playerID string) (bool, error) {
	var removed bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		removed = false
		team, idx := sess.TeamOf(playerID)
		if team < 0 {
			return store.ErrNoChange
		}
		t := &sess.Teams[team]
		t.Players = append(t.Players[:idx:idx], t.Players[idx+1:]...)
		if idx < len(t.Votes) {
			t.Votes = append(t.Votes[:idx:idx], t.Votes[idx+1:]...)
		}
		g := &sess.Game
		if l := g.Leader(team); l != nil && l.ID == playerID {
			g.SetLeader(team, nil)
		}
		if c := g.CurrentSelectionLeader; c != nil && c.ID == playerID {
			g.CurrentSelectionLeader = nil
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("player_left", zap.String("session_id", id), zap.String("player_id", playerID))
		s.publish(ctx, sess)
	}
	return removed, nil
}

// BeginLeaderSelection opens the leader vote. Calling it again while the vote
// is open is a no-op; calling it after leaders exist is ErrLeadersAssigned.
func (s *Service) BeginLeaderSelection(ctx context.Context, id string) error {
	var changed bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		changed = false
		if sess.Game.Team0Leader != nil || sess.Game.Team1Leader != nil {
			return ErrLeadersAssigned
		}
		switch sess.Status {
		case domain.StatusCreated:
		case domain.StatusLeaderSelection:
			return store.ErrNoChange
		case domain.StatusFinished:
			return ErrSessionFinished
		default:
			return ErrAlreadyStarted
		}
		sess.Status = domain.StatusLeaderSelection
		sess.VotingStartedAt = s.now()
		for i := range sess.Teams {
			sess.Teams[i].Votes = make([]int, len(sess.Teams[i].Players))
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("leader_selection_started", zap.String("session_id", id))
		s.publish(ctx, sess)
	}
	return nil
}

func (s *Service) SubmitLeaderVote(ctx context.Context, id, voterID, targetID string) error {
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		return voting.RecordLeaderVote(sess, voterID, targetID)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("leader_vote", zap.String("session_id", id), zap.String("voter_id", voterID), zap.String("target_id", targetID))
	s.publish(ctx, sess)
	return nil
}

// AssignLeaders resolves both teams' votes into leaders.
func (s *Service) AssignLeaders(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		if sess.Status != domain.StatusLeaderSelection {
			return ErrNotLeaderSelection
		}
		leaders := make([]domain.Player, domain.TeamCount)
		for i := range sess.Teams {
			p, err := voting.ResolveLeader(sess.Teams[i])
			if err != nil {
				return err
			}
			leaders[i] = p
		}
		for i := range leaders {
			p := leaders[i]
			sess.Game.SetLeader(i, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("leaders_assigned",
		zap.String("session_id", id),
		zap.String("team0_leader", sess.Game.Team0Leader.ID),
		zap.String("team1_leader", sess.Game.Team1Leader.ID))
	s.publish(ctx, sess)
	return sess, nil
}

// StartGame moves to InProgress in team 0's hint phase and arms the turn timer.
func (s *Service) StartGame(ctx context.Context, id string) error {
	var started bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		started = false
		switch sess.Status {
		case domain.StatusInProgress:
			return store.ErrNoChange
		case domain.StatusFinished:
			return ErrSessionFinished
		}
		g := &sess.Game
		if g.Team0Leader == nil || g.Team1Leader == nil {
			return ErrLeadersMissing
		}
		sess.Status = domain.StatusInProgress
		g.TurnTeam = 0
		g.HintTurn = true
		g.GuessingTurn = false
		g.Hint, g.HintCount = "", 0
		g.Round = 0
		g.ResetCardVotes()
		g.TurnSeq++
		g.CurrentSelectionLeader = g.Leader(0)
		g.PhaseStartedAt = s.now()
		started = true
		return nil
	})
	if err != nil {
		return err
	}
	if started {
		s.timer.Schedule(id, sess.Game.TurnSeq, sess.Timing.HintDuration)
		s.logger.Info("game_started", zap.String("session_id", id), zap.Int64("turn_seq", sess.Game.TurnSeq))
		s.publish(ctx, sess)
	}
	return nil
}

// FinishGame ends the session. Finishing twice is a no-op.
func (s *Service) FinishGame(ctx context.Context, id string) error {
	var finished bool
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		finished = false
		if sess.Status == domain.StatusFinished {
			return store.ErrNoChange
		}
		finish(sess, domain.NoWinner, domain.ReasonAborted)
		finished = true
		return nil
	})
	if err != nil {
		return err
	}
	// a no-op still disarms a timer that might have outlived the state change
	s.timer.Cancel(id)
	if finished {
		s.afterFinish(ctx, sess)
		s.publish(ctx, sess)
	}
	return nil
}
