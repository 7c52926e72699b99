// Package orderexec implements the order submission boundary: a narrow
// interface that a live signer could implement, and a simulator that
// fills every order at the current mid, per spec.md §6 (concrete
// exchange/CLOB wire protocols are explicitly out of scope).
package orderexec

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"polybot/internal/domain"
	"polybot/internal/logging"
	"polybot/internal/retry"
)

// ErrSubmitFailed is returned after the retry policy is exhausted.
var ErrSubmitFailed = errors.New("orderexec: order submission failed")

// Order is a minimal request to open or close a position's underlying
// token position. ReferencePrice is the mid the caller observed at
// submission time; SimExecutor fills at exactly this price, a live
// executor would instead treat it as a limit/slippage guard.
type Order struct {
	PositionID     string
	Asset          domain.Asset
	Direction      domain.Direction
	SizeUsdc       float64
	ReferencePrice float64
}

// Fill is the result of a successfully submitted order.
type Fill struct {
	OrderID   string
	FillPrice float64
	FilledAt  int64
}

// Executor is the narrow order-submission boundary. A live
// implementation would sign and submit to the prediction-market CLOB;
// that signer is explicitly out of scope here (spec.md §1).
type Executor interface {
	Submit(ctx context.Context, order Order) (Fill, error)
}

// SimExecutor fills every order at the provided mid price, simulating
// zero slippage. It is the only Executor this repository ships.
type SimExecutor struct {
	log *logging.Logger
}

// NewSimExecutor builds a SimExecutor.
func NewSimExecutor() *SimExecutor {
	return &SimExecutor{log: logging.WithComponent("orderexec")}
}

// Submit fills order at its reference price immediately, wrapped in the
// standard retry policy per spec.md §7's downstream-I/O-failure handling
// (a simulator never actually fails, but the wrapping keeps the call
// site identical to what a live executor would need).
func (s *SimExecutor) Submit(ctx context.Context, order Order) (Fill, error) {
	var fill Fill
	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
		if order.ReferencePrice <= 0 {
			return ErrSubmitFailed
		}
		fill = Fill{
			OrderID:   uuid.NewString(),
			FillPrice: order.ReferencePrice,
			FilledAt:  time.Now().Unix(),
		}
		return nil
	})
	if err != nil {
		s.log.Warn("order submission failed after retries, demoting to SubmitFailed", "position_id", order.PositionID, "error", err)
		return Fill{}, ErrSubmitFailed
	}
	return fill, nil
}
