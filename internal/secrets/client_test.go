package secrets

import (
	"context"
	"testing"
)

func TestDisabledClientServesSeededCredentials(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	want := Credentials{APIKey: "k", APISecret: "s", Exchange: "polymarket"}
	if err := c.Put(ctx, "polymarket-ws", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := c.Get(ctx, "polymarket-ws")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDisabledClientErrorsOnUnknownSource(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Get(context.Background(), "unknown"); err == nil {
		t.Fatalf("expected an error for an uncached source with vault disabled")
	}
}
