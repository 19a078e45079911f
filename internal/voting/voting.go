// Package voting tallies leader-election and card-selection votes. It only
// mutates the session it is handed; persistence is the caller's job.
package voting

import (
	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
)

var (
	ErrVoterNotFound     = apperr.New(apperr.NotFound, "voter is not on a team")
	ErrTargetNotFound    = apperr.New(apperr.NotFound, "vote target is not on the voter's team")
	ErrNotLeaderElection = apperr.New(apperr.InvalidState, "leader votes are only accepted during leader selection")
	ErrNotInProgress     = apperr.New(apperr.InvalidState, "card votes are only accepted while the game is in progress")
	ErrCardOutOfRange    = apperr.New(apperr.InvalidArgument, "card index out of range")
	ErrNoLeader          = apperr.New(apperr.InvalidState, "team has no members to lead")
)

// RecordLeaderVote adds one vote from voterID for targetID inside the voter's team.
func RecordLeaderVote(s *domain.Session, voterID, targetID string) error {
	if s.Status != domain.StatusLeaderSelection {
		return ErrNotLeaderElection
	}
	team, _ := s.TeamOf(voterID)
	if team < 0 {
		return ErrVoterNotFound
	}
	t := &s.Teams[team]
	idx := t.IndexOf(targetID)
	if idx < 0 {
		return ErrTargetNotFound
	}
	alignVotes(t)
	t.Votes[idx]++
	return nil
}

// RecordCardVote adds or withdraws one vote for a board cell. Withdrawals floor at zero.
func RecordCardVote(s *domain.Session, voterID string, cardIndex int, add bool) error {
	if s.Status != domain.StatusInProgress {
		return ErrNotInProgress
	}
	if team, _ := s.TeamOf(voterID); team < 0 {
		return ErrVoterNotFound
	}
	g := &s.Game
	if cardIndex < 0 || cardIndex >= len(g.Cards) {
		return ErrCardOutOfRange
	}
	if len(g.CardVotes) != len(g.Cards) {
		g.ResetCardVotes()
	}
	if add {
		g.CardVotes[cardIndex]++
	} else if g.CardVotes[cardIndex] > 0 {
		g.CardVotes[cardIndex]--
	}
	return nil
}

// ResolveLeader picks the member with the strictly highest vote count.
// Ties go to the earliest member in team order.
func ResolveLeader(team domain.Team) (domain.Player, error) {
	if len(team.Players) == 0 {
		return domain.Player{}, ErrNoLeader
	}
	best, top := 0, -1
	for i := range team.Players {
		v := 0
		if i < len(team.Votes) {
			v = team.Votes[i]
		}
		if v > top {
			best, top = i, v
		}
	}
	return team.Players[best], nil
}

// Tally is a read-only copy of all vote counters.
type Tally struct {
	Leaders [domain.TeamCount][]int `json:"leaders"`
	Cards   []int                   `json:"cards"`
}

func TallyOf(s *domain.Session) Tally {
	var out Tally
	for i := range s.Teams {
		out.Leaders[i] = append([]int(nil), s.Teams[i].Votes...)
	}
	out.Cards = append([]int(nil), s.Game.CardVotes...)
	return out
}

func alignVotes(t *domain.Team) {
	for len(t.Votes) < len(t.Players) {
		t.Votes = append(t.Votes, 0)
	}
	t.Votes = t.Votes[:len(t.Players)]
}
