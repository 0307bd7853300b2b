package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echopolis/market-engine/internal/model"
	"github.com/echopolis/market-engine/internal/sim"
	"github.com/echopolis/market-engine/internal/store"
)

func (h *WSHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSHub_BroadcastAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.clientCount() == 1 })

	hub.Broadcast(WSMessage{Type: "tick_advanced", SessionID: "s1", Tick: 3, Accrued: "642"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "tick_advanced" || msg.Tick != 3 || msg.Accrued != "642" {
		t.Errorf("unexpected message %+v", msg)
	}

	cancel()
	waitFor(t, func() bool { return hub.clientCount() == 0 })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed on shutdown")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount", model.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: session x", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: tick 3", model.ErrStaleTick), http.StatusConflict},
		{fmt.Errorf("%w: corrupted", sim.ErrHalted), http.StatusConflict},
		{fmt.Errorf("%w: s1 tick 2", store.ErrDuplicateRecord), http.StatusConflict},
		{fmt.Errorf("%w: high < low", model.ErrInternalInvariant), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"index": math.Inf(1)})
	if !strings.Contains(buf.String(), "failed to encode response") {
		t.Errorf("expected encode failure to be logged, got %q", buf.String())
	}
}
