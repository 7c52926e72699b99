package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"polybot/internal/domain"
	"polybot/internal/events"
)

type fakeBot struct {
	paused bool
}

func (f *fakeBot) Status() map[string]interface{} {
	return map[string]interface{}{"paused": f.paused}
}
func (f *fakeBot) OpenPositions() []domain.Position { return []domain.Position{{ID: "p1"}} }
func (f *fakeBot) ClosedTrades() []domain.Trade     { return []domain.Trade{{PositionID: "p1"}} }
func (f *fakeBot) Diagnostics() map[string]int64    { return map[string]int64{"filter_rejection:spread": 2} }
func (f *fakeBot) Calibration() map[string]domain.CalibrationSnapshot {
	return map[string]domain.CalibrationSnapshot{}
}
func (f *fakeBot) Pause() error  { f.paused = true; return nil }
func (f *fakeBot) Resume() error { f.paused = false; return nil }
func (f *fakeBot) Flatten(ctx context.Context) ([]domain.Trade, error) {
	return []domain.Trade{{PositionID: "p1", ExitReason: domain.ExitShutdown}}, nil
}

func testServer() (*Server, *fakeBot) {
	bot := &fakeBot{}
	bus := events.NewEventBus()
	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, bot, bus, nil)
	return s, bot
}

func TestStatusEndpointReturnsBotStatus(t *testing.T) {
	s, _ := testServer()
	req := httptest.NewRequest(http.MethodGet, "/snapshot/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPauseEndpointInvokesBotPause(t *testing.T) {
	s, bot := testServer()
	req := httptest.NewRequest(http.MethodPost, "/snapshot/pause", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bot.paused {
		t.Fatalf("expected bot.Pause to have been invoked")
	}
}

func TestFlattenEndpointReturnsClosedTrades(t *testing.T) {
	s, _ := testServer()
	req := httptest.NewRequest(http.MethodPost, "/snapshot/flatten", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
