package session

import (
	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/voting"
)

var (
	ErrSessionNotFound = store.ErrSessionNotFound
	ErrCardOutOfRange  = voting.ErrCardOutOfRange

	ErrInvalidName       = apperr.New(apperr.InvalidArgument, "session name is required")
	ErrInvalidMaxPlayers = apperr.New(apperr.InvalidArgument, "max players must be between 1 and 100")
	ErrInvalidTiming     = apperr.New(apperr.InvalidArgument, "turn durations must not be negative")
	ErrInvalidLanguage   = apperr.New(apperr.InvalidArgument, "language is not enabled")
	ErrInvalidTeam       = apperr.New(apperr.InvalidArgument, "team index must be 0 or 1")
	ErrInvalidHint       = apperr.New(apperr.InvalidArgument, "hint must be a non-empty word with a count between 0 and 25")

	ErrLeadersAssigned    = apperr.New(apperr.InvalidState, "leaders already assigned")
	ErrNotLeaderSelection = apperr.New(apperr.InvalidState, "session is not selecting leaders")
	ErrLeadersMissing     = apperr.New(apperr.InvalidState, "both teams need a leader before the game starts")
	ErrNotInProgress      = apperr.New(apperr.InvalidState, "game is not in progress")
	ErrAlreadyStarted     = apperr.New(apperr.InvalidState, "game already started")
	ErrSessionFinished    = apperr.New(apperr.InvalidState, "session is finished")
	ErrNotHintPhase       = apperr.New(apperr.InvalidState, "hints are only accepted during the hint phase")
	ErrNotActiveLeader    = apperr.New(apperr.InvalidState, "only the active team's leader can give a hint")
)

const maxPlayersLimit = 100
