package boardimg

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

func snapshot() *sessiondto.Snapshot {
	snap := &sessiondto.Snapshot{ID: "s1", Status: "IN_PROGRESS"}
	for i := 0; i < 25; i++ {
		snap.Game.Cards = append(snap.Game.Cards, "Żółw")
		snap.Game.Colors = append(snap.Game.Colors, sessiondto.HiddenColor)
		snap.Game.CardVotes = append(snap.Game.CardVotes, 0)
	}
	snap.Game.Colors[0] = 1
	snap.Game.Revealed = []int{0}
	snap.Game.CardVotes[4] = 2
	snap.Game.HintTurn = true
	return snap
}

func TestRenderPNG(t *testing.T) {
	r := NewRenderer()
	out, err := r.RenderPNG(context.Background(), snapshot())
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	wantW := margin*2 + columns*tileW + (columns-1)*gap
	wantH := margin*2 + headerH + 5*tileH + 4*gap
	if b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
	// revealed team 0 tile is drawn in its team color
	cr, _, _, _ := img.At(margin+tileW/2, margin+headerH+6).RGBA()
	if cr>>8 < 150 {
		t.Fatalf("revealed tile not colored, red=%d", cr>>8)
	}
	if len(r.tiles) != 2 {
		t.Fatalf("tile cache = %d styles", len(r.tiles))
	}
}

func TestRenderPNGCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRenderer().RenderPNG(ctx, snapshot()); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestFoldLabel(t *testing.T) {
	cases := map[string]string{
		"Żółw":   "ZOLW",
		" apple": "APPLE",
		"Łódź":   "LODZ",
	}
	for in, want := range cases {
		if got := foldLabel(in); got != want {
			t.Fatalf("foldLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTileStyleHidesUnknown(t *testing.T) {
	key, _ := tileStyle(sessiondto.HiddenColor, false)
	if key.fill != hiddenFill || key.stroke != hiddenFill {
		t.Fatalf("hidden tile leaks color: %+v", key)
	}
	key, _ = tileStyle(3, false)
	if key.fill != hiddenFill || key.stroke != colorFill[3] {
		t.Fatalf("leader view tile = %+v", key)
	}
}
