package orderexec

import (
	"context"
	"testing"

	"polybot/internal/domain"
)

func TestSimExecutorFillsAtReferencePrice(t *testing.T) {
	e := NewSimExecutor()
	order := Order{PositionID: "p1", Asset: domain.BTC, Direction: domain.Up, SizeUsdc: 100, ReferencePrice: 101.5}
	fill, err := e.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill.FillPrice != 101.5 {
		t.Fatalf("expected fill at reference price 101.5, got %v", fill.FillPrice)
	}
	if fill.OrderID == "" {
		t.Fatalf("expected a non-empty order id")
	}
}

func TestSimExecutorRejectsZeroReferencePrice(t *testing.T) {
	e := NewSimExecutor()
	order := Order{PositionID: "p1", Asset: domain.BTC, Direction: domain.Up, SizeUsdc: 100}
	_, err := e.Submit(context.Background(), order)
	if err != ErrSubmitFailed {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}

var _ Executor = (*SimExecutor)(nil)
