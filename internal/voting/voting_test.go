package voting

import (
	"errors"
	"testing"

	"github.com/park285/codenames-server/internal/domain"
)

func sessionWith(status domain.Status, team0, team1 []string) *domain.Session {
	s := &domain.Session{Status: status}
	for _, id := range team0 {
		s.Teams[0].Players = append(s.Teams[0].Players, domain.Player{ID: id, DisplayName: id})
		s.Teams[0].Votes = append(s.Teams[0].Votes, 0)
	}
	for _, id := range team1 {
		s.Teams[1].Players = append(s.Teams[1].Players, domain.Player{ID: id, DisplayName: id})
		s.Teams[1].Votes = append(s.Teams[1].Votes, 0)
	}
	s.Game.Cards = make([]string, domain.BoardSize)
	s.Game.ResetCardVotes()
	return s
}

func TestRecordLeaderVote(t *testing.T) {
	s := sessionWith(domain.StatusLeaderSelection, []string{"a", "b"}, []string{"c"})

	if err := RecordLeaderVote(s, "a", "b"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := RecordLeaderVote(s, "b", "b"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if s.Teams[0].Votes[1] != 2 || s.Teams[0].Votes[0] != 0 {
		t.Fatalf("votes = %v", s.Teams[0].Votes)
	}

	if err := RecordLeaderVote(s, "a", "c"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("cross-team vote: %v", err)
	}
	if err := RecordLeaderVote(s, "zz", "a"); !errors.Is(err, ErrVoterNotFound) {
		t.Fatalf("unknown voter: %v", err)
	}

	s.Status = domain.StatusInProgress
	if err := RecordLeaderVote(s, "a", "a"); !errors.Is(err, ErrNotLeaderElection) {
		t.Fatalf("wrong status: %v", err)
	}
}

func TestRecordCardVote(t *testing.T) {
	s := sessionWith(domain.StatusInProgress, []string{"a"}, []string{"c"})

	if err := RecordCardVote(s, "a", 3, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := RecordCardVote(s, "c", 3, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := RecordCardVote(s, "a", 3, false); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := RecordCardVote(s, "a", 4, false); err != nil {
		t.Fatalf("remove from zero: %v", err)
	}
	if s.Game.CardVotes[3] != 1 || s.Game.CardVotes[4] != 0 {
		t.Fatalf("card votes = %v", s.Game.CardVotes)
	}
	if err := RecordCardVote(s, "a", 25, true); !errors.Is(err, ErrCardOutOfRange) {
		t.Fatalf("out of range: %v", err)
	}
	if err := RecordCardVote(s, "a", -1, true); !errors.Is(err, ErrCardOutOfRange) {
		t.Fatalf("negative index: %v", err)
	}

	s.Status = domain.StatusLeaderSelection
	if err := RecordCardVote(s, "a", 1, true); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("wrong status: %v", err)
	}
}

func TestResolveLeaderTieBreakIsFirstIndex(t *testing.T) {
	team := domain.Team{
		Players: []domain.Player{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Votes:   []int{1, 3, 3},
	}
	for i := 0; i < 10; i++ {
		p, err := ResolveLeader(team)
		if err != nil {
			t.Fatalf("ResolveLeader: %v", err)
		}
		if p.ID != "b" {
			t.Fatalf("expected b, got %s", p.ID)
		}
	}

	zero := domain.Team{Players: []domain.Player{{ID: "x"}, {ID: "y"}}, Votes: []int{0, 0}}
	if p, _ := ResolveLeader(zero); p.ID != "x" {
		t.Fatalf("all-zero tie should pick first, got %s", p.ID)
	}
}

func TestResolveLeaderEmptyTeam(t *testing.T) {
	if _, err := ResolveLeader(domain.Team{}); !errors.Is(err, ErrNoLeader) {
		t.Fatalf("expected ErrNoLeader, got %v", err)
	}
}

func TestTallyOfCopies(t *testing.T) {
	s := sessionWith(domain.StatusLeaderSelection, []string{"a"}, []string{"b"})
	s.Teams[0].Votes[0] = 4
	tally := TallyOf(s)
	tally.Leaders[0][0] = 99
	if s.Teams[0].Votes[0] != 4 {
		t.Fatalf("tally must not alias session votes")
	}
	if len(tally.Cards) != domain.BoardSize {
		t.Fatalf("cards tally length %d", len(tally.Cards))
	}
}
