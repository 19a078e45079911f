package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/codenames-server/internal/board"
	"github.com/park285/codenames-server/internal/cardcorpus"
	"github.com/park285/codenames-server/internal/notify"
	"github.com/park285/codenames-server/internal/session"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/pkg/sessiondto"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	corpus, err := cardcorpus.New("")
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	gen, err := board.NewSeededGenerator(corpus, board.DefaultLayout, 7, 11)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	hub := notify.NewHub(nil)
	svc, err := session.NewService(session.Deps{
		Store:    store.NewRedisStore(rdb),
		Boards:   gen,
		Notifier: hub,
	}, session.Config{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	srv := httptest.NewServer(NewHandler(svc, WithHub(hub)).Routes())
	t.Cleanup(func() {
		srv.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func createSession(t *testing.T, srv *httptest.Server, req sessiondto.CreateSessionRequest) string {
	t.Helper()
	var created sessiondto.CreateSessionResponse
	if code := call(t, srv, http.MethodPost, "/v1/sessions", req, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	return created.ID
}

func TestGameOverHTTP(t *testing.T) {
	srv := newServer(t)
	id := createSession(t, srv, sessiondto.CreateSessionRequest{Name: "table", MaxPlayers: 4, Language: "en"})
	base := "/v1/sessions/" + id

	for _, j := range []sessiondto.JoinRequest{{PlayerID: "A", Team: 0}, {PlayerID: "B", Team: 1}} {
		var resp sessiondto.JoinResponse
		if code := call(t, srv, http.MethodPost, base+"/players", j, &resp); code != http.StatusOK || !resp.Joined {
			t.Fatalf("join %s = %d %+v", j.PlayerID, code, resp)
		}
	}
	if code := call(t, srv, http.MethodPost, base+"/leader-selection", nil, nil); code != http.StatusOK {
		t.Fatalf("leader-selection status = %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/leader-votes", sessiondto.LeaderVoteRequest{VoterID: "A", TargetID: "A"}, nil); code != http.StatusOK {
		t.Fatalf("leader vote status = %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/leaders", nil, nil); code != http.StatusOK {
		t.Fatalf("leaders status = %d", code)
	}
	var snap sessiondto.Snapshot
	if code := call(t, srv, http.MethodPost, base+"/start", nil, &snap); code != http.StatusOK || snap.Status != "IN_PROGRESS" {
		t.Fatalf("start = %d %s", code, snap.Status)
	}
	for i, c := range snap.Game.Colors {
		if c != sessiondto.HiddenColor {
			t.Fatalf("public snapshot leaked color of card %d", i)
		}
	}

	var leader sessiondto.Snapshot
	if code := call(t, srv, http.MethodGet, base+"?view=leader&player_id=A", nil, &leader); code != http.StatusOK {
		t.Fatalf("leader view status = %d", code)
	}
	forbidden := -1
	for i, c := range leader.Game.Colors {
		if c == 3 {
			forbidden = i
		}
	}
	if forbidden < 0 {
		t.Fatalf("leader view has no forbidden card")
	}

	seq := snap.Game.TurnSeq
	var turned sessiondto.Snapshot
	if code := call(t, srv, http.MethodPost, base+"/turn", sessiondto.TurnRequest{ExpectedSeq: seq}, &turned); code != http.StatusOK || turned.Game.TurnSeq != seq+1 || !turned.Game.GuessingTurn {
		t.Fatalf("turn = %d seq=%d guessing=%v", code, turned.Game.TurnSeq, turned.Game.GuessingTurn)
	}
	if code := call(t, srv, http.MethodPost, base+"/turn", sessiondto.TurnRequest{ExpectedSeq: seq}, &turned); code != http.StatusOK || turned.Game.TurnSeq != seq+1 || turned.Game.TurnTeam != 0 {
		t.Fatalf("stale turn = %d seq=%d team=%d", code, turned.Game.TurnSeq, turned.Game.TurnTeam)
	}

	var rev sessiondto.RevealResponse
	if code := call(t, srv, http.MethodPost, base+"/reveal", sessiondto.RevealRequest{CardIndex: forbidden}, &rev); code != http.StatusOK {
		t.Fatalf("reveal status = %d", code)
	}
	if !rev.Finished || rev.Snapshot.Status != "FINISHED" || rev.Snapshot.Game.Team1Score != 100 {
		t.Fatalf("reveal = %+v", rev)
	}

	var errBody sessiondto.ErrorResponse
	if code := call(t, srv, http.MethodPost, base+"/turn", nil, &errBody); code != http.StatusConflict || errBody.Code != "INVALID_STATE" {
		t.Fatalf("turn after finish = %d %+v", code, errBody)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	var errBody sessiondto.ErrorResponse
	if code := call(t, srv, http.MethodGet, "/v1/sessions/nope", nil, &errBody); code != http.StatusNotFound || errBody.Code != "NOT_FOUND" {
		t.Fatalf("missing = %d %+v", code, errBody)
	}
	if code := call(t, srv, http.MethodPost, "/v1/sessions", sessiondto.CreateSessionRequest{MaxPlayers: 2}, &errBody); code != http.StatusBadRequest {
		t.Fatalf("invalid create = %d", code)
	}
	id := createSession(t, srv, sessiondto.CreateSessionRequest{Name: "x", MaxPlayers: 2})
	if code := call(t, srv, http.MethodGet, "/v1/sessions/"+id+"?view=leader&player_id=A", nil, &errBody); code != http.StatusUnauthorized {
		t.Fatalf("leader view without leadership = %d", code)
	}
	if code := call(t, srv, http.MethodDelete, "/v1/sessions/"+id, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
}

func TestJoinRequiresPassword(t *testing.T) {
	srv := newServer(t)
	id := createSession(t, srv, sessiondto.CreateSessionRequest{Name: "locked", MaxPlayers: 2, Password: "pw"})
	base := "/v1/sessions/" + id

	var errBody sessiondto.ErrorResponse
	if code := call(t, srv, http.MethodPost, base+"/players", sessiondto.JoinRequest{PlayerID: "A"}, &errBody); code != http.StatusUnauthorized {
		t.Fatalf("join without password = %d", code)
	}
	var joined sessiondto.JoinResponse
	if code := call(t, srv, http.MethodPost, base+"/players", sessiondto.JoinRequest{PlayerID: "A", Password: "pw"}, &joined); code != http.StatusOK || !joined.Joined {
		t.Fatalf("join with password = %d %+v", code, joined)
	}
	var list []sessiondto.SessionSummary
	if code := call(t, srv, http.MethodGet, "/v1/sessions", nil, &list); code != http.StatusOK || len(list) != 1 || !list[0].HasPassword || list[0].Players != 1 {
		t.Fatalf("list = %d %+v", code, list)
	}
}

func TestBoardImage(t *testing.T) {
	srv := newServer(t)
	id := createSession(t, srv, sessiondto.CreateSessionRequest{Name: "img", MaxPlayers: 2})
	resp, err := srv.Client().Get(srv.URL + "/v1/sessions/" + id + "/board.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("board.png = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestWebsocketReceivesPushes(t *testing.T) {
	srv := newServer(t)
	id := createSession(t, srv, sessiondto.CreateSessionRequest{Name: "live", MaxPlayers: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"/v1/sessions/"+id+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var initial sessiondto.Snapshot
	if err := wsjson.Read(ctx, conn, &initial); err != nil {
		t.Fatalf("initial read: %v", err)
	}
	if initial.ID != id {
		t.Fatalf("initial snapshot for %s", initial.ID)
	}

	// the subscriber is registered just after the initial write, so joins are spaced out
	go func() {
		for _, p := range []string{"A", "B"} {
			time.Sleep(50 * time.Millisecond)
			body, _ := json.Marshal(sessiondto.JoinRequest{PlayerID: p, Team: 0})
			resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/players", "application/json", bytes.NewReader(body))
			if err == nil {
				resp.Body.Close()
			}
		}
	}()
	var pushed sessiondto.Snapshot
	if err := wsjson.Read(ctx, conn, &pushed); err != nil {
		t.Fatalf("push read: %v", err)
	}
	if pushed.Version <= initial.Version {
		t.Fatalf("push version %d not newer than %d", pushed.Version, initial.Version)
	}
}
