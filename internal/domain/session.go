package domain

import (
	"time"
)

// Status is the session lifecycle state. It only moves forward.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusLeaderSelection Status = "LEADER_SELECTION"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusFinished        Status = "FINISHED"
)

// CardColor is the hidden key color of a board cell.
type CardColor int

const (
	ColorNeutral CardColor = iota
	ColorTeam0
	ColorTeam1
	ColorForbidden
)

func (c CardColor) String() string {
	switch c {
	case ColorNeutral:
		return "neutral"
	case ColorTeam0:
		return "team0"
	case ColorTeam1:
		return "team1"
	case ColorForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// TeamColor returns the card color owned by team index t.
func TeamColor(t int) CardColor {
	if t == 0 {
		return ColorTeam0
	}
	return ColorTeam1
}

const (
	BoardSize = 25
	TeamCount = 2

	// LossSentinelScore is written to the opposing team's score when the forbidden card is revealed.
	LossSentinelScore = 100

	// NoWinner marks a drawn outcome.
	NoWinner = -1
)

// Outcome reasons
const (
	ReasonAllCards  = "all_cards"
	ReasonForbidden = "forbidden"
	ReasonMaxRounds = "max_rounds"
	ReasonAborted   = "aborted"
)

type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Team keeps members and their leader votes as parallel slices: Votes[i] belongs to Players[i].
type Team struct {
	Players []Player `json:"players"`
	Votes   []int    `json:"votes"`
}

func (t *Team) IndexOf(playerID string) int {
	for i, p := range t.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Timing is the per-session turn cadence.
type Timing struct {
	HintDuration  time.Duration `json:"hint_duration"`
	GuessDuration time.Duration `json:"guess_duration"`
	MaxRounds     int           `json:"max_rounds,omitempty"`
}

type Outcome struct {
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
}

type GameState struct {
	Cards     []string    `json:"cards"`
	Colors    []CardColor `json:"colors"`
	CardVotes []int       `json:"card_votes"`
	Revealed  []int       `json:"revealed"`

	Hint      string `json:"hint,omitempty"`
	HintCount int    `json:"hint_count"`

	Team0Leader            *Player `json:"team0_leader,omitempty"`
	Team1Leader            *Player `json:"team1_leader,omitempty"`
	CurrentSelectionLeader *Player `json:"current_selection_leader,omitempty"`

	TurnTeam     int  `json:"turn_team"`
	HintTurn     bool `json:"hint_turn"`
	GuessingTurn bool `json:"guessing_turn"`

	Team0Score int `json:"team0_score"`
	Team1Score int `json:"team1_score"`

	TurnSeq        int64     `json:"turn_seq"`
	Round          int       `json:"round"`
	PhaseStartedAt time.Time `json:"phase_started_at,omitempty"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
}

type Session struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	MaxPlayers   int             `json:"max_players"`
	PasswordHash string          `json:"password_hash,omitempty"`
	Language     string          `json:"language"`
	Status       Status          `json:"status"`
	Teams        [TeamCount]Team `json:"teams"`
	Timing       Timing          `json:"timing"`
	Game         GameState       `json:"game"`

	VotingStartedAt time.Time `json:"voting_started_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	// LastUpdated is a logical clock bumped by every committed mutation.
	LastUpdated int64 `json:"last_updated"`
}

func (s *Session) PlayerCount() int {
	n := 0
	for i := range s.Teams {
		n += len(s.Teams[i].Players)
	}
	return n
}

// TeamOf returns the team index and member index of playerID, or (-1, -1).
func (s *Session) TeamOf(playerID string) (int, int) {
	for t := range s.Teams {
		if i := s.Teams[t].IndexOf(playerID); i >= 0 {
			return t, i
		}
	}
	return -1, -1
}

func (s *Session) Touch(now time.Time) {
	s.LastUpdated++
	s.UpdatedAt = now
}

func (g *GameState) Leader(team int) *Player {
	if team == 0 {
		return g.Team0Leader
	}
	return g.Team1Leader
}

func (g *GameState) SetLeader(team int, p *Player) {
	if team == 0 {
		g.Team0Leader = p
	} else {
		g.Team1Leader = p
	}
}

func (g *GameState) Score(team int) int {
	if team == 0 {
		return g.Team0Score
	}
	return g.Team1Score
}

func (g *GameState) AddScore(team, delta int) {
	if team == 0 {
		g.Team0Score += delta
	} else {
		g.Team1Score += delta
	}
}

func (g *GameState) SetScore(team, v int) {
	if team == 0 {
		g.Team0Score = v
	} else {
		g.Team1Score = v
	}
}

func (g *GameState) IsRevealed(idx int) bool {
	for _, r := range g.Revealed {
		if r == idx {
			return true
		}
	}
	return false
}

// Allocated counts board cells with color c.
func (g *GameState) Allocated(c CardColor) int {
	n := 0
	for _, col := range g.Colors {
		if col == c {
			n++
		}
	}
	return n
}

// RevealedOf counts revealed cells with color c.
func (g *GameState) RevealedOf(c CardColor) int {
	n := 0
	for _, idx := range g.Revealed {
		if idx >= 0 && idx < len(g.Colors) && g.Colors[idx] == c {
			n++
		}
	}
	return n
}

func (g *GameState) ResetCardVotes() {
	g.CardVotes = make([]int, len(g.Cards))
}

// ChangeTurn advances the hint/guess sub-machine: Hint → Guessing for the same team,
// Guessing → Hint for the other team. Card votes are cleared on every transition.
func (g *GameState) ChangeTurn() {
	if g.GuessingTurn {
		g.passToOtherTeam()
	} else {
		g.HintTurn = false
		g.GuessingTurn = true
	}
	g.afterTurnChange()
}

// PassTurn hands the turn to the other team's Hint phase regardless of the current phase.
func (g *GameState) PassTurn() {
	g.passToOtherTeam()
	g.afterTurnChange()
}

func (g *GameState) passToOtherTeam() {
	g.TurnTeam = 1 - g.TurnTeam
	g.HintTurn = true
	g.GuessingTurn = false
	g.Hint = ""
	g.HintCount = 0
	if g.TurnTeam == 0 {
		g.Round++
	}
}

func (g *GameState) afterTurnChange() {
	g.ResetCardVotes()
	g.TurnSeq++
	g.CurrentSelectionLeader = g.Leader(g.TurnTeam)
}

// PhaseDuration is the length of the phase the game is currently in.
func (t Timing) PhaseDuration(g *GameState) time.Duration {
	if g.GuessingTurn {
		return t.GuessDuration
	}
	return t.HintDuration
}
