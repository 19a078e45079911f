package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/pkg/sessiondto"
)

type subscriber struct {
	conn *websocket.Conn
	view sessiondto.View
}

// Hub keeps websocket subscribers per session and writes snapshots to them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}

	writeTimeout time.Duration
	logger       *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:         make(map[string]map[*subscriber]struct{}),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Serve upgrades the request and blocks until the client goes away.
// initial, when non-nil, is written before the subscriber starts receiving pushes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, view sessiondto.View, initial *sessiondto.Snapshot) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}
	sub := &subscriber{conn: conn, view: view}

	if initial != nil {
		wctx, cancel := context.WithTimeout(r.Context(), h.writeTimeout)
		err := wsjson.Write(wctx, conn, initial)
		cancel()
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "initial write failed")
			return err
		}
	}

	h.add(sessionID, sub)
	defer h.remove(sessionID, sub)
	h.logger.Info("ws_subscribe", zap.String("session_id", sessionID), zap.Int("subscribers", h.Subscribers(sessionID)))

	// client messages are ignored; reading only detects the close
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func (h *Hub) add(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) remove(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sessionID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Push writes the snapshot to every subscriber of the session. Subscribers
// that fail to accept the write are dropped; that is not an error for the caller.
func (h *Hub) Push(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[sessionID]))
	for s := range h.subs[sessionID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	if len(targets) == 0 || snap == nil {
		return nil
	}

	for _, sub := range targets {
		msg := snap
		if sub.view == sessiondto.PublicView {
			msg = publicCopy(snap)
		}
		wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		err := wsjson.Write(wctx, sub.conn, msg)
		cancel()
		if err != nil {
			h.logger.Warn("ws_push_error", zap.String("session_id", sessionID), zap.Error(err))
			h.remove(sessionID, sub)
			_ = sub.conn.Close(websocket.StatusGoingAway, "write failed")
		}
	}
	return nil
}

// publicCopy hides unrevealed colors from a leader-view snapshot.
func publicCopy(snap *sessiondto.Snapshot) *sessiondto.Snapshot {
	if snap.Status == string(domain.StatusFinished) {
		return snap
	}
	cp := *snap
	revealed := make(map[int]bool, len(snap.Game.Revealed))
	for _, i := range snap.Game.Revealed {
		revealed[i] = true
	}
	cp.Game.Colors = make([]int, len(snap.Game.Colors))
	for i, c := range snap.Game.Colors {
		if revealed[i] {
			cp.Game.Colors[i] = c
		} else {
			cp.Game.Colors[i] = sessiondto.HiddenColor
		}
	}
	return &cp
}
