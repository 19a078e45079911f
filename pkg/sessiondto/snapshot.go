package sessiondto

import (
	"time"

	"github.com/park285/codenames-server/internal/domain"
)

// HiddenColor is reported for cards whose color is not visible to the viewer.
const HiddenColor = -1

type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Team struct {
	Players []Player `json:"players"`
	Votes   []int    `json:"votes"`
}

type Outcome struct {
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
}

type Game struct {
	Cards     []string `json:"cards"`
	Colors    []int    `json:"colors"`
	Revealed  []int    `json:"revealed"`
	CardVotes []int    `json:"card_votes"`

	Hint      string `json:"hint,omitempty"`
	HintCount int    `json:"hint_count"`

	Team0Leader            *Player `json:"team0_leader,omitempty"`
	Team1Leader            *Player `json:"team1_leader,omitempty"`
	CurrentSelectionLeader *Player `json:"current_selection_leader,omitempty"`

	TurnTeam     int   `json:"turn_team"`
	HintTurn     bool  `json:"hint_turn"`
	GuessingTurn bool  `json:"guessing_turn"`
	TurnSeq      int64 `json:"turn_seq"`
	Round        int   `json:"round"`

	Team0Score int      `json:"team0_score"`
	Team1Score int      `json:"team1_score"`
	Outcome    *Outcome `json:"outcome,omitempty"`
}

// Snapshot is the state pushed to subscribers after each committed mutation.
// Version increases with every commit and can be used to drop duplicates.
type Snapshot struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	MaxPlayers      int       `json:"max_players"`
	HasPassword     bool      `json:"has_password"`
	Language        string    `json:"language"`
	Teams           [2]Team   `json:"teams"`
	Game            Game      `json:"game"`
	HintSeconds     int       `json:"hint_seconds"`
	GuessSeconds    int       `json:"guess_seconds"`
	MaxRounds       int       `json:"max_rounds,omitempty"`
	VotingStartedAt time.Time `json:"voting_started_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// View selects how much of the color key is exposed.
type View int

const (
	PublicView View = iota
	LeaderView
)

func FromSession(s *domain.Session, view View) *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		ID:              s.ID,
		Name:            s.Name,
		Status:          string(s.Status),
		MaxPlayers:      s.MaxPlayers,
		HasPassword:     s.PasswordHash != "",
		Language:        s.Language,
		HintSeconds:     int(s.Timing.HintDuration / time.Second),
		GuessSeconds:    int(s.Timing.GuessDuration / time.Second),
		MaxRounds:       s.Timing.MaxRounds,
		VotingStartedAt: s.VotingStartedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Version:         s.LastUpdated,
	}
	for i := range s.Teams {
		t := Team{Players: make([]Player, 0, len(s.Teams[i].Players)), Votes: append([]int{}, s.Teams[i].Votes...)}
		for _, p := range s.Teams[i].Players {
			t.Players = append(t.Players, Player(p))
		}
		out.Teams[i] = t
	}

	g := &s.Game
	reveal := view == LeaderView || s.Status == domain.StatusFinished
	colors := make([]int, len(g.Colors))
	for i, c := range g.Colors {
		if reveal || g.IsRevealed(i) {
			colors[i] = int(c)
		} else {
			colors[i] = HiddenColor
		}
	}
	out.Game = Game{
		Cards:                  append([]string{}, g.Cards...),
		Colors:                 colors,
		Revealed:               append([]int{}, g.Revealed...),
		CardVotes:              append([]int{}, g.CardVotes...),
		Hint:                   g.Hint,
		HintCount:              g.HintCount,
		Team0Leader:            playerPtr(g.Team0Leader),
		Team1Leader:            playerPtr(g.Team1Leader),
		CurrentSelectionLeader: playerPtr(g.CurrentSelectionLeader),
		TurnTeam:               g.TurnTeam,
		HintTurn:               g.HintTurn,
		GuessingTurn:           g.GuessingTurn,
		TurnSeq:                g.TurnSeq,
		Round:                  g.Round,
		Team0Score:             g.Team0Score,
		Team1Score:             g.Team1Score,
	}
	if g.Outcome != nil {
		out.Game.Outcome = &Outcome{Winner: g.Outcome.Winner, Reason: g.Outcome.Reason}
	}
	return out
}

func playerPtr(p *domain.Player) *Player {
	if p == nil {
		return nil
	}
	cp := Player(*p)
	return &cp
}
