package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
)

var ErrUnknownPlayer = apperr.New(apperr.NotFound, "player not found")

// Provider resolves an opaque player id into display data.
type Provider interface {
	ResolvePlayer(ctx context.Context, playerID string) (domain.Player, error)
}

// Directory is an in-memory provider. Unknown ids resolve to themselves unless Strict is set.
type Directory struct {
	mu      sync.RWMutex
	players map[string]string
	Strict  bool
}

func NewDirectory() *Directory {
	return &Directory{players: make(map[string]string)}
}

func (d *Directory) Register(playerID, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.players[strings.TrimSpace(playerID)] = strings.TrimSpace(displayName)
}

func (d *Directory) ResolvePlayer(_ context.Context, playerID string) (domain.Player, error) {
	id := strings.TrimSpace(playerID)
	if id == "" {
		return domain.Player{}, apperr.New(apperr.InvalidArgument, "player id is required")
	}
	d.mu.RLock()
	name, ok := d.players[id]
	d.mu.RUnlock()
	if !ok {
		if d.Strict {
			return domain.Player{}, ErrUnknownPlayer
		}
		name = id
	}
	if name == "" {
		name = id
	}
	return domain.Player{ID: id, DisplayName: name}, nil
}
