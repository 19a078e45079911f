// Package boardimg draws a session board as a PNG.
package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

const (
	columns     = 5
	tileW       = 148
	tileH       = 92
	gap         = 10
	margin      = 24
	headerH     = 46
	tileRadius  = 12
	labelInsetX = 10
)

var (
	backgroundColor = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	headerText      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hiddenFill      = "#e9dcc0"
	darkText        = color.NRGBA{R: 34, G: 30, B: 26, A: 255}
	lightText       = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	voteText        = color.NRGBA{R: 214, G: 40, B: 40, A: 255}
)

// colorFill maps snapshot color codes onto tile fills.
var colorFill = map[int]string{
	0: "#c9bfa5",
	1: "#c4473c",
	2: "#3a6fb8",
	3: "#2a2a2a",
}

const tileSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d">
<rect x="2" y="2" width="%d" height="%d" rx="%d" ry="%d" fill="%s" stroke="%s" stroke-width="%d"/>
</svg>`

type tileKey struct {
	fill   string
	stroke string
}

// Renderer turns snapshots into PNG boards. Tiles are rasterized once per style.
type Renderer struct {
	mu    sync.RWMutex
	tiles map[tileKey]image.Image
	face  font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{tiles: make(map[tileKey]image.Image), face: basicfont.Face7x13}
}

// RenderPNG draws the board as seen through snap; hidden colors stay hidden.
func (r *Renderer) RenderPNG(ctx context.Context, snap *sessiondto.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	g := snap.Game
	if len(g.Cards) == 0 {
		return nil, fmt.Errorf("board has no cards")
	}
	rows := (len(g.Cards) + columns - 1) / columns
	width := margin*2 + columns*tileW + (columns-1)*gap
	height := margin*2 + headerH + rows*tileH + (rows-1)*gap

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawer := &font.Drawer{Dst: img, Face: r.face}
	drawCentered(drawer, image.Rect(0, margin/2, width, margin/2+headerH), headerLine(snap), headerText)

	revealed := make(map[int]bool, len(g.Revealed))
	for _, idx := range g.Revealed {
		revealed[idx] = true
	}

	for i, label := range g.Cards {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		col, row := i%columns, i/columns
		x := margin + col*(tileW+gap)
		y := margin + headerH + row*(tileH+gap)
		rect := image.Rect(x, y, x+tileW, y+tileH)

		code := sessiondto.HiddenColor
		if i < len(g.Colors) {
			code = g.Colors[i]
		}
		key, textColor := tileStyle(code, revealed[i])
		tile, err := r.tile(key)
		if err != nil {
			return nil, err
		}
		imagedraw.Draw(img, rect, tile, image.Point{}, imagedraw.Over)

		text := truncate(r.face, foldLabel(label), tileW-labelInsetX*2)
		drawCentered(drawer, rect, text, textColor)
		if i < len(g.CardVotes) && g.CardVotes[i] > 0 {
			drawer.Src = image.NewUniform(voteText)
			drawer.Dot = fixed.P(rect.Max.X-28, rect.Min.Y+18)
			drawer.DrawString("x" + strconv.Itoa(g.CardVotes[i]))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func headerLine(snap *sessiondto.Snapshot) string {
	g := snap.Game
	var b strings.Builder
	fmt.Fprintf(&b, "RED %d : %d BLUE", g.Team0Score, g.Team1Score)
	switch {
	case g.Outcome != nil && g.Outcome.Winner >= 0:
		fmt.Fprintf(&b, "  |  TEAM %d WINS (%s)", g.Outcome.Winner, g.Outcome.Reason)
	case g.Outcome != nil:
		fmt.Fprintf(&b, "  |  DRAW (%s)", g.Outcome.Reason)
	case g.HintTurn:
		fmt.Fprintf(&b, "  |  TEAM %d HINT", g.TurnTeam)
	case g.GuessingTurn:
		fmt.Fprintf(&b, "  |  TEAM %d GUESS", g.TurnTeam)
	}
	if g.Hint != "" {
		fmt.Fprintf(&b, "  |  %s %d", foldLabel(g.Hint), g.HintCount)
	}
	return b.String()
}

// tileStyle picks fill and border. Known but unrevealed colors get a colored border on a hidden fill.
func tileStyle(code int, revealed bool) (tileKey, color.Color) {
	fill, known := colorFill[code]
	switch {
	case !known:
		return tileKey{fill: hiddenFill, stroke: hiddenFill}, darkText
	case revealed:
		if code == 0 {
			return tileKey{fill: fill, stroke: fill}, darkText
		}
		return tileKey{fill: fill, stroke: fill}, lightText
	default:
		return tileKey{fill: hiddenFill, stroke: fill}, darkText
	}
}

func (r *Renderer) tile(key tileKey) (image.Image, error) {
	r.mu.RLock()
	img, ok := r.tiles[key]
	r.mu.RUnlock()
	if ok {
		return img, nil
	}

	src := fmt.Sprintf(tileSVG, tileW, tileH, tileW-4, tileH-4, tileRadius, tileRadius, key.fill, key.stroke, 4)
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse tile svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(tileW), float64(tileH))

	rgba := image.NewRGBA(image.Rect(0, 0, tileW, tileH))
	scanner := rasterx.NewScannerGV(tileW, tileH, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(tileW, tileH, scanner)
	icon.Draw(raster, 1.0)

	r.mu.Lock()
	r.tiles[key] = rgba
	r.mu.Unlock()
	return rgba, nil
}

func drawCentered(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func truncate(face font.Face, text string, maxWidth int) string {
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	rs := []rune(text)
	for len(rs) > 0 {
		rs = rs[:len(rs)-1]
		candidate := string(rs) + "..."
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ""
}

// foldLabel strips diacritics so labels fit the bitmap font, e.g. "Żółw" -> "ZOLW".
func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Map(foldStroke), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

func foldStroke(r rune) rune {
	switch r {
	case 'ł':
		return 'l'
	case 'Ł':
		return 'L'
	case 'đ':
		return 'd'
	case 'Đ':
		return 'D'
	case 'ø':
		return 'o'
	case 'Ø':
		return 'O'
	}
	return r
}
