package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestClientSubscribesAndDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subCh := make(chan subscribeRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("decode subscribe: %v", err)
			return
		}
		subCh <- req
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"100.5"}`))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(wsURL, 10*time.Millisecond, 0, zap.NewNop())
	if err := client.Subscribe(ctx, "BTCUSDT@miniTicker"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msgCh := make(chan json.RawMessage, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(msg json.RawMessage) {
			select {
			case msgCh <- msg:
			default:
			}
		})
	}()

	select {
	case req := <-subCh:
		if req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != "btcusdt@miniTicker" {
			t.Fatalf("unexpected subscribe request: %+v", req)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for subscribe")
	}
	select {
	case msg := <-msgCh:
		if !strings.Contains(string(msg), "BTCUSDT") {
			t.Fatalf("unexpected message %s", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client := New("ws://127.0.0.1:1/ws", 10*time.Millisecond, 0, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, nil) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
