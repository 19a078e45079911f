package cardcorpus

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/codenames-server/internal/apperr"
)

//go:embed cards.yaml
var defaultFiles embed.FS

// BaseLanguage is the language whose label is the card id itself.
const BaseLanguage = "pl"

var ErrUnsupportedLanguage = apperr.New(apperr.InvalidArgument, "unsupported card language")

type Card struct {
	ID    string            `yaml:"id" json:"id"`
	Names map[string]string `yaml:"names" json:"names"`
}

// Label returns the card text in lang, or false when the card has none.
func (c Card) Label(lang string) (string, bool) {
	if n, ok := c.Names[lang]; ok && strings.TrimSpace(n) != "" {
		return strings.TrimSpace(n), true
	}
	if lang == BaseLanguage {
		return c.ID, true
	}
	return "", false
}

type document struct {
	Cards []Card `yaml:"cards"`
}

// Corpus is read-only after construction apart from overrides applied by New.
type Corpus struct {
	mu    sync.RWMutex
	cards map[string]Card
}

// New loads the embedded cards and then merges yaml files from overrideDir if provided.
func New(overrideDir string) (*Corpus, error) {
	c := &Corpus{cards: make(map[string]Card)}
	raw, err := fs.ReadFile(defaultFiles, "cards.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded cards: %w", err)
	}
	if err := c.apply(raw, "cards.yaml"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FromCards builds a corpus without the embedded defaults.
func FromCards(cards []Card) *Corpus {
	c := &Corpus{cards: make(map[string]Card, len(cards))}
	for _, card := range cards {
		c.merge(card)
	}
	return c
}

func (c *Corpus) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read cards dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	// applied in file name order
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.apply(b, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Corpus) apply(b []byte, source string) error {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}
	for i, card := range doc.Cards {
		if strings.TrimSpace(card.ID) == "" {
			return fmt.Errorf("parse %s: card #%d has empty id", source, i)
		}
		c.merge(card)
	}
	return nil
}

// merge adds card or overlays its names onto an existing card with the same id.
func (c *Corpus) merge(card Card) {
	id := strings.TrimSpace(card.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cards[id]
	if !ok {
		cur = Card{ID: id, Names: make(map[string]string)}
	}
	for lang, name := range card.Names {
		cur.Names[NormalizeLanguage(lang)] = name
	}
	c.cards[id] = cur
}

// CardsInLanguage returns the distinct labels available in lang, ordered by card id.
func (c *Corpus) CardsInLanguage(lang string) ([]string, error) {
	lang = NormalizeLanguage(lang)
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.cards))
	for id := range c.cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		label, ok := c.cards[id].Label(lang)
		if !ok {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, label)
	}
	if len(out) == 0 {
		return nil, apperr.Wrap(apperr.InvalidArgument, ErrUnsupportedLanguage.Message, fmt.Errorf("language %q", lang))
	}
	return out, nil
}

func (c *Corpus) AllCards() []Card {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Card, 0, len(c.cards))
	for _, card := range c.cards {
		names := make(map[string]string, len(card.Names))
		for k, v := range card.Names {
			names[k] = v
		}
		out = append(out, Card{ID: card.ID, Names: names})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NormalizeLanguage reduces a BCP 47 tag such as "en-US" to its base language ("en").
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(lang)
	}
	base, _ := tag.Base()
	return base.String()
}
