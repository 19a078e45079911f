package sessiondto

type CreateSessionRequest struct {
	Name         string `json:"name"`
	MaxPlayers   int    `json:"max_players"`
	Password     string `json:"password,omitempty"`
	Language     string `json:"language"`
	HintSeconds  int    `json:"hint_seconds,omitempty"`
	GuessSeconds int    `json:"guess_seconds,omitempty"`
	MaxRounds    int    `json:"max_rounds,omitempty"`
}

type CreateSessionResponse struct {
	ID string `json:"id"`
}

type JoinRequest struct {
	PlayerID string `json:"player_id"`
	Team     int    `json:"team"`
	Password string `json:"password,omitempty"`
}

type JoinResponse struct {
	Joined bool `json:"joined"`
}

type LeaveResponse struct {
	Removed bool `json:"removed"`
}

type LeaderVoteRequest struct {
	VoterID  string `json:"voter_id"`
	TargetID string `json:"target_id"`
}

type CardVoteRequest struct {
	VoterID   string `json:"voter_id"`
	CardIndex int    `json:"card_index"`
	// Add defaults to true when omitted.
	Add *bool `json:"add,omitempty"`
}

type HintRequest struct {
	PlayerID string `json:"player_id"`
	Hint     string `json:"hint"`
	Count    int    `json:"count"`
}

type RevealRequest struct {
	CardIndex int `json:"card_index"`
}

type RevealResponse struct {
	CardIndex    int       `json:"card_index"`
	Color        int       `json:"color"`
	AlreadyShown bool      `json:"already_revealed"`
	TurnPassed   bool      `json:"turn_passed"`
	Finished     bool      `json:"finished"`
	Snapshot     *Snapshot `json:"snapshot"`
}

// TurnRequest is optional. ExpectedSeq, when set, is the snapshot's turn_seq
// the client is ending; a stale value leaves the turn untouched.
type TurnRequest struct {
	ExpectedSeq int64 `json:"expected_seq,omitempty"`
}

type AuthRequest struct {
	Password string `json:"password"`
}

type AuthResponse struct {
	OK bool `json:"ok"`
}

type VotesResponse struct {
	Leaders [2][]int `json:"leaders"`
	Cards   []int    `json:"cards"`
}

type SessionSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"max_players"`
	HasPassword bool   `json:"has_password"`
	Language    string `json:"language"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
