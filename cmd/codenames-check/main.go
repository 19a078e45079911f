package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

func main() {
	baseURL := strings.TrimRight(os.Getenv("CODENAMES_BASE_URL"), "/")
	sessionID := strings.TrimSpace(os.Getenv("CODENAMES_SESSION_ID"))
	if baseURL == "" {
		log.Fatal("CODENAMES_BASE_URL is required")
	}
	client := &fasthttp.Client{ReadTimeout: 8 * time.Second, WriteTimeout: 8 * time.Second}

	if err := getJSON(client, baseURL+"/healthz", nil); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Println("/healthz ok")

	var list []sessiondto.SessionSummary
	if err := getJSON(client, baseURL+"/v1/sessions", &list); err != nil {
		log.Printf("/v1/sessions error: %v", err)
	} else {
		log.Printf("/v1/sessions ok: %d sessions", len(list))
		for _, s := range list {
			log.Printf("  %s %q status=%s players=%d/%d", s.ID, s.Name, s.Status, s.Players, s.MaxPlayers)
		}
	}

	if sessionID == "" {
		log.Println("CODENAMES_SESSION_ID not set; skipping WS check")
		return
	}
	watch(baseURL, sessionID, 10*time.Second)
}

func getJSON(client *fasthttp.Client, url string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := client.DoTimeout(req, resp, 5*time.Second); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode(), resp.Body())
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

// watch prints snapshots pushed for the session for a short window.
func watch(baseURL, sessionID string, window time.Duration) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/sessions/" + sessionID + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var snap sessiondto.Snapshot
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			if ctx.Err() == nil {
				log.Printf("WS read error: %v", err)
			}
			return
		}
		fmt.Printf("WS snapshot v=%d status=%s team=%d hint=%v score=%d:%d\n",
			snap.Version, snap.Status, snap.Game.TurnTeam, snap.Game.HintTurn, snap.Game.Team0Score, snap.Game.Team1Score)
	}
}
