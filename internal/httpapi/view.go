package httpapi

import (
	"net/http"
	"strings"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/pkg/sessiondto"
)

var (
	errWrongPassword = apperr.New(apperr.Unauthorized, "wrong session password")
	errNotLeader     = apperr.New(apperr.Unauthorized, "leader view requires a team leader's player_id")
)

// viewFor resolves ?view=leader&player_id=... into the leader view. Only the
// two assigned leaders may see the full color key of a running game.
func viewFor(r *http.Request, sess *domain.Session) (sessiondto.View, error) {
	q := r.URL.Query()
	if !strings.EqualFold(strings.TrimSpace(q.Get("view")), "leader") {
		return sessiondto.PublicView, nil
	}
	pid := strings.TrimSpace(q.Get("player_id"))
	if pid == "" {
		return sessiondto.PublicView, errNotLeader
	}
	for t := 0; t < domain.TeamCount; t++ {
		if l := sess.Game.Leader(t); l != nil && l.ID == pid {
			return sessiondto.LeaderView, nil
		}
	}
	return sessiondto.PublicView, errNotLeader
}
