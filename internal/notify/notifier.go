package notify

import (
	"context"
	"errors"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

// Notifier receives a snapshot after every committed session mutation.
// Delivery is at-least-once; consumers deduplicate by Snapshot.Version.
type Notifier interface {
	Push(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error
}

// Func adapts a plain function.
type Func func(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error

func (f Func) Push(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error {
	return f(ctx, sessionID, snap)
}

type Nop struct{}

func (Nop) Push(context.Context, string, *sessiondto.Snapshot) error { return nil }

// Multi fans a snapshot out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Push(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Push(ctx, sessionID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
