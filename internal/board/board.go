package board

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
)

// Corpus supplies card labels for a language.
type Corpus interface {
	CardsInLanguage(lang string) ([]string, error)
}

var ErrNotEnoughCards = apperr.New(apperr.InvalidArgument, "not enough cards in language")

// Layout is the color split of a board. The forbidden cell is always exactly one.
type Layout struct {
	Team0 int
	Team1 int
}

var DefaultLayout = Layout{Team0: 9, Team1: 8}

func (l Layout) Validate() error {
	if l.Team0 <= 0 || l.Team1 <= 0 || l.Team0+l.Team1+1 > domain.BoardSize {
		return fmt.Errorf("invalid board layout team0=%d team1=%d", l.Team0, l.Team1)
	}
	return nil
}

// Generator draws boards. Safe for concurrent use.
type Generator struct {
	corpus Corpus
	layout Layout

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(corpus Corpus, layout Layout) (*Generator, error) {
	return NewSeededGenerator(corpus, layout, secureSeed(), secureSeed())
}

func NewSeededGenerator(corpus Corpus, layout Layout, seed1, seed2 uint64) (*Generator, error) {
	if corpus == nil {
		return nil, fmt.Errorf("board: corpus is required")
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Generator{corpus: corpus, layout: layout, rnd: rand.New(rand.NewPCG(seed1, seed2))}, nil
}

func (g *Generator) Layout() Layout { return g.layout }

// Generate returns 25 distinct labels and a shuffled color key for them.
func (g *Generator) Generate(_ context.Context, lang string) ([]string, []domain.CardColor, error) {
	labels, err := g.corpus.CardsInLanguage(lang)
	if err != nil {
		return nil, nil, err
	}
	if len(labels) < domain.BoardSize {
		return nil, nil, apperr.Wrap(apperr.InvalidArgument, ErrNotEnoughCards.Message,
			fmt.Errorf("language %q has %d cards", lang, len(labels)))
	}

	colors := make([]domain.CardColor, domain.BoardSize)
	i := 0
	for ; i < g.layout.Team0; i++ {
		colors[i] = domain.ColorTeam0
	}
	for ; i < g.layout.Team0+g.layout.Team1; i++ {
		colors[i] = domain.ColorTeam1
	}
	colors[i] = domain.ColorForbidden

	g.mu.Lock()
	pick := g.rnd.Perm(len(labels))[:domain.BoardSize]
	g.rnd.Shuffle(len(colors), func(a, b int) { colors[a], colors[b] = colors[b], colors[a] })
	g.mu.Unlock()

	cards := make([]string, domain.BoardSize)
	for j, idx := range pick {
		cards[j] = labels[idx]
	}
	return cards, colors, nil
}

func secureSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}
