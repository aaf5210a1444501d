package feed

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func binaryFrame(token, paise uint32) []byte {
	packet := make([]byte, 8)
	binary.BigEndian.PutUint32(packet[0:4], token)
	binary.BigEndian.PutUint32(packet[4:8], paise)

	frame := make([]byte, 2)
	binary.BigEndian.PutUint16(frame, 1)
	lenPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPrefix, uint16(len(packet)))
	frame = append(frame, lenPrefix...)
	frame = append(frame, packet...)
	return frame
}

func TestManagerConnectAndDispatchTick(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
		conn.WriteMessage(websocket.BinaryMessage, binaryFrame(256265, 150075))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	m := New(Config{URL: wsURL, ReconnectDelay: time.Hour}, testLogger())
	defer m.Close()

	var mu sync.Mutex
	var gotToken uint32
	var gotPrice float64
	done := make(chan struct{})

	m.SetTickHandler(func(token uint32, price float64) {
		mu.Lock()
		defer mu.Unlock()
		gotToken = token
		gotPrice = price
		close(done)
	})

	if err := m.Subscribe([]uint32{256265}); err != nil {
		t.Fatalf("subscribe before connect should be a no-op, got error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !m.IsConnected() {
		t.Fatalf("expected manager to report connected")
	}

	if err := m.Subscribe([]uint32{256265}); err != nil {
		t.Fatalf("subscribe after connect failed: %v", err)
	}

	select {
	case msg := <-received:
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			t.Fatalf("server received unparseable command: %v", err)
		}
		if cmd.Action != "subscribe" {
			t.Fatalf("expected subscribe action, got %q", cmd.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received subscribe command")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick handler never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotToken != 256265 || gotPrice != 1500.75 {
		t.Fatalf("unexpected tick: token=%d price=%v", gotToken, gotPrice)
	}
}

func TestManagerDisconnectOnUnconnectedManagerIsNoop(t *testing.T) {
	m := New(Config{URL: "ws://127.0.0.1:1", ReconnectDelay: time.Millisecond}, testLogger())
	if err := m.Disconnect(); err != nil {
		t.Fatalf("disconnect on unconnected manager should be a no-op: %v", err)
	}
	if m.IsConnected() {
		t.Fatalf("expected manager to report disconnected")
	}
}
