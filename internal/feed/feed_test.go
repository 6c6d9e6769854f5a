package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func writeReplayFile(t *testing.T, dir, symbol string, rows string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(rows), 0o644); err != nil {
		t.Fatalf("write replay file: %v", err)
	}
}

func TestReplayWalksRecordedPoints(t *testing.T) {
	dir := t.TempDir()
	writeReplayFile(t, dir, "IVV",
		"IVV,20200401,093000,250.00\n"+
			"IVV,20200401,093100,250.25\n"+
			"IVV,20200402,093000,251.00\n")

	replay, err := OpenReplay(dir, "IVV", time.Time{})
	if err != nil {
		t.Fatalf("OpenReplay returned error: %v", err)
	}

	first, err := replay.Next()
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if first.Price != 250.00 || first.Ts.Hour() != 9 || first.Ts.Minute() != 30 {
		t.Fatalf("unexpected first point %+v", first)
	}

	if _, err := replay.Next(); err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if _, err := replay.Next(); err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if _, err := replay.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after last row, got %v", err)
	}
}

func TestReplayDayFilter(t *testing.T) {
	dir := t.TempDir()
	writeReplayFile(t, dir, "IVV",
		"IVV,20200401,093000,250.00\n"+
			"IVV,20200402,093000,251.00\n"+
			"IVV,20200402,093100,251.50\n")

	replay, err := OpenReplay(dir, "IVV", time.Date(2020, time.April, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("OpenReplay returned error: %v", err)
	}

	p, err := replay.Next()
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if p.Ts.Day() != 2 || p.Price != 251.00 {
		t.Fatalf("expected first day-two point, got %+v", p)
	}
	if _, err := replay.Next(); err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if _, err := replay.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after filtered rows, got %v", err)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := OpenReplay(t.TempDir(), "NOPE", time.Time{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSyntheticSeries(t *testing.T) {
	start := time.Date(2020, time.April, 6, 9, 30, 0, 0, time.UTC)
	synth := NewSynthetic("TEST", start, 100.0, 0.5, 3)

	p1, _ := synth.Next()
	p2, _ := synth.Next()
	p3, _ := synth.Next()

	if p1.Price != 100.0 || p2.Price != 100.5 || p3.Price != 101.0 {
		t.Fatalf("unexpected prices %.2f %.2f %.2f", p1.Price, p2.Price, p3.Price)
	}
	if p2.Ts.Sub(p1.Ts) != time.Minute {
		t.Fatalf("expected minute spacing, got %s", p2.Ts.Sub(p1.Ts))
	}
	if _, err := synth.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after count spent, got %v", err)
	}
}

func TestPollerRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"IVV","price":251.37,"ts":1585747800000}`))
	}))
	defer srv.Close()

	poller := NewPoller(srv.URL, "IVV", zerolog.Nop())
	p, err := poller.Next()
	if err != nil {
		t.Fatalf("Next returned error after retries: %v", err)
	}
	if p.Price != 251.37 {
		t.Fatalf("unexpected price %.2f", p.Price)
	}
	if calls != 3 {
		t.Fatalf("expected two retries before success, got %d calls", calls)
	}
}

func TestPollerRejectsBadPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"IVV","price":0}`))
	}))
	defer srv.Close()

	poller := NewPoller(srv.URL, "IVV", zerolog.Nop())
	if _, err := poller.Next(); err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestStreamDeliversTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"IVV","p":"251.10","T":1585747800000}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"OTHER","p":"1.00","T":1585747801000}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"IVV","p":"251.20","T":1585747860000}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream := DialStream(ctx, "ws"+srv.URL[len("http"):], "IVV", zerolog.Nop())
	defer stream.Close()

	p1, err := stream.Next()
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if p1.Price != 251.10 {
		t.Fatalf("unexpected first price %.2f", p1.Price)
	}

	// the OTHER symbol message is filtered out
	p2, err := stream.Next()
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if p2.Price != 251.20 {
		t.Fatalf("unexpected second price %.2f", p2.Price)
	}

	stream.Close()
	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after Close, got %v", err)
	}
}
