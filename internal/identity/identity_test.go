package identity

import (
	"context"
	"errors"
	"testing"
)

func TestDirectoryResolve(t *testing.T) {
	d := NewDirectory()
	d.Register("u1", "Alice")
	ctx := context.Background()

	p, err := d.ResolvePlayer(ctx, " u1 ")
	if err != nil || p.DisplayName != "Alice" || p.ID != "u1" {
		t.Fatalf("resolve u1: %+v %v", p, err)
	}
	p, err = d.ResolvePlayer(ctx, "u2")
	if err != nil || p.DisplayName != "u2" {
		t.Fatalf("lenient resolve: %+v %v", p, err)
	}
	if _, err := d.ResolvePlayer(ctx, "  "); err == nil {
		t.Fatalf("empty id must fail")
	}

	d.Strict = true
	if _, err := d.ResolvePlayer(ctx, "u2"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("strict resolve: %v", err)
	}
}
