package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

func sampleSnapshot(version int64) *sessiondto.Snapshot {
	return &sessiondto.Snapshot{
		ID:      "s1",
		Status:  "IN_PROGRESS",
		Version: version,
		Game: sessiondto.Game{
			Colors:   []int{1, 2, 3},
			Revealed: []int{1},
		},
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls int32
	ok := Func(func(context.Context, string, *sessiondto.Snapshot) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	bad := Func(func(context.Context, string, *sessiondto.Snapshot) error { return errors.New("down") })

	err := Multi{ok, nil, bad, ok}.Push(context.Background(), "s1", sampleSnapshot(1))
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both healthy notifiers to run, got %d", calls)
	}
	if err := (Nop{}).Push(context.Background(), "s1", nil); err != nil {
		t.Fatalf("Nop: %v", err)
	}
}

func TestHubDeliversFilteredSnapshots(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := sessiondto.PublicView
		if r.URL.Query().Get("view") == "leader" {
			view = sessiondto.LeaderView
		}
		_ = hub.Serve(w, r, "s1", view, sampleSnapshot(1))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	public, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial public: %v", err)
	}
	defer public.Close(websocket.StatusNormalClosure, "")
	leader, _, err := websocket.Dial(ctx, wsURL+"?view=leader", nil)
	if err != nil {
		t.Fatalf("dial leader: %v", err)
	}
	defer leader.Close(websocket.StatusNormalClosure, "")

	var first sessiondto.Snapshot
	if err := wsjson.Read(ctx, public, &first); err != nil || first.Version != 1 {
		t.Fatalf("initial snapshot: %v %+v", err, first)
	}
	if err := wsjson.Read(ctx, leader, &first); err != nil {
		t.Fatalf("initial leader snapshot: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("s1") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Push(ctx, "s1", sampleSnapshot(2)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	var pub, lead sessiondto.Snapshot
	if err := wsjson.Read(ctx, public, &pub); err != nil {
		t.Fatalf("read public: %v", err)
	}
	if err := wsjson.Read(ctx, leader, &lead); err != nil {
		t.Fatalf("read leader: %v", err)
	}
	if pub.Version != 2 || lead.Version != 2 {
		t.Fatalf("versions = %d/%d", pub.Version, lead.Version)
	}
	if pub.Game.Colors[0] != sessiondto.HiddenColor || pub.Game.Colors[1] != 2 {
		t.Fatalf("public colors = %v", pub.Game.Colors)
	}
	if lead.Game.Colors[0] != 1 || lead.Game.Colors[2] != 3 {
		t.Fatalf("leader colors = %v", lead.Game.Colors)
	}
}

func TestHubPushWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Push(context.Background(), "nobody", sampleSnapshot(1)); err != nil {
		t.Fatalf("Push: %v", err)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var hits int32
	var got sessiondto.Snapshot
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/hooks/sessions/s1/snapshot" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL+"/hooks/", WithRetry(3), WithHeaderProvider(func() map[string]string {
		return map[string]string{"X-Token": "secret"}
	}))
	if err := wh.Push(context.Background(), "s1", sampleSnapshot(7)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}
	if got.Version != 7 {
		t.Fatalf("payload version = %d", got.Version)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithRetry(5))
	if err := wh.Push(context.Background(), "s1", sampleSnapshot(1)); err == nil {
		t.Fatalf("expected error on 400")
	}
	if hits != 1 {
		t.Fatalf("4xx must not be retried, hits=%d", hits)
	}
}

func TestWebhookSendsPublicViewByDefault(t *testing.T) {
	bodies := make(chan sessiondto.Snapshot, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snap sessiondto.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		bodies <- snap
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).Push(context.Background(), "s1", sampleSnapshot(1)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got := <-bodies
	want := []int{sessiondto.HiddenColor, 2, sessiondto.HiddenColor}
	for i := range want {
		if got.Game.Colors[i] != want[i] {
			t.Fatalf("public colors = %v, want %v", got.Game.Colors, want)
		}
	}

	leader := NewWebhook(srv.URL, WithWebhookView(sessiondto.LeaderView))
	if err := leader.Push(context.Background(), "s1", sampleSnapshot(2)); err != nil {
		t.Fatalf("leader Push: %v", err)
	}
	got = <-bodies
	if got.Game.Colors[0] != 1 || got.Game.Colors[2] != 3 {
		t.Fatalf("leader colors = %v", got.Game.Colors)
	}
}
