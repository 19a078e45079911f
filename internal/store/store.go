package store

import (
	"context"
	"errors"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/domain"
)

var (
	ErrSessionNotFound = apperr.New(apperr.NotFound, "session not found")
	ErrContention      = apperr.New(apperr.Conflict, "session is being modified concurrently")

	// ErrNoChange may be returned by a Mutation to commit nothing.
	ErrNoChange = errors.New("store: no change")
)

// Mutation is a transition applied to a freshly loaded session. It can run more
// than once when a concurrent writer wins, so it must only depend on its argument
// and on values it recomputes on every call.
type Mutation func(s *domain.Session) error

// Store is the keyed, TTL-backed session repository.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Put overwrites the whole aggregate and refreshes its TTL.
	Put(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Session, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Update serializes read-modify-write per session id. Successful mutations
	// bump LastUpdated and refresh the TTL.
	Update(ctx context.Context, id string, fn Mutation) (*domain.Session, error)
}
