// Package feed owns the single upstream market-data connection (C3): its
// lifecycle, subscription replay across reconnects, and tick dispatch.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hmtengine/internal/feed/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeDelay = 15 * time.Second
)

// TickHandler is invoked for every decoded tick. It is called from the
// read loop's goroutine; handlers that block delay subsequent ticks.
type TickHandler func(token uint32, price float64)

// command mirrors the upstream's subscribe/unsubscribe/mode control
// message shape.
type command struct {
	Action string   `json:"a"`
	Value  []uint32 `json:"v"`
}

// Manager owns the connection lifecycle for the upstream feed. Only one
// reconnect timer is ever armed; reconnects use a fixed delay, not
// exponential backoff, since the upstream rate-limits implicitly.
type Manager struct {
	url            string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu              sync.Mutex
	conn            *websocket.Conn
	connected       bool
	shouldReconnect bool
	subscribed      map[uint32]struct{}

	handlerMu sync.RWMutex
	handler   TickHandler

	done chan struct{}
}

// Config configures a Manager.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
}

// New creates a Manager. It does not connect until Connect is called.
func New(cfg Config, logger *slog.Logger) *Manager {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Manager{
		url:            cfg.URL,
		reconnectDelay: delay,
		logger:         logger,
		subscribed:     make(map[uint32]struct{}),
		done:           make(chan struct{}),
	}
}

// SetTickHandler registers the callback invoked for every decoded tick.
func (m *Manager) SetTickHandler(h TickHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = h
}

// Connect dials the upstream and starts the read/ping loops. On success
// it replays every previously-subscribed instrument token.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.shouldReconnect = true
	m.mu.Unlock()

	return m.connectOnce(ctx)
}

func (m *Manager) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeDelay}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	tokens := m.subscribedTokensLocked()
	m.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go m.readLoop(conn)
	go m.pingLoop(conn)

	if len(tokens) > 0 {
		if err := m.send(conn, command{Action: "subscribe", Value: tokens}); err != nil {
			return fmt.Errorf("feed: replay subscriptions: %w", err)
		}
		if err := m.send(conn, command{Action: "mode", Value: tokens}); err != nil {
			return fmt.Errorf("feed: set mode full: %w", err)
		}
	}

	return nil
}

// Disconnect sets intent to closed, suppressing further reconnects, and
// tears down the current connection.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.shouldReconnect = false
	conn := m.conn
	m.connected = false
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// Subscribe adds tokens to the tracked subscription set and, if
// connected, sends the subscribe+mode commands immediately.
func (m *Manager) Subscribe(tokens []uint32) error {
	m.mu.Lock()
	for _, t := range tokens {
		m.subscribed[t] = struct{}{}
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := m.send(conn, command{Action: "subscribe", Value: tokens}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return m.send(conn, command{Action: "mode", Value: tokens})
}

// Unsubscribe removes tokens from the tracked set and, if connected,
// notifies the upstream.
func (m *Manager) Unsubscribe(tokens []uint32) error {
	m.mu.Lock()
	for _, t := range tokens {
		delete(m.subscribed, t)
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return m.send(conn, command{Action: "unsubscribe", Value: tokens})
}

// IsConnected reports whether a live connection is currently held.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) subscribedTokensLocked() []uint32 {
	out := make([]uint32, 0, len(m.subscribed))
	for t := range m.subscribed {
		out = append(out, t)
	}
	return out
}

func (m *Manager) send(conn *websocket.Conn, cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal command: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection fails or Disconnect is
// called, dispatching every decoded tick to the registered handler.
func (m *Manager) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		m.mu.Lock()
		sameConn := m.conn == conn
		if sameConn {
			m.connected = false
		}
		reconnect := m.shouldReconnect && sameConn
		m.mu.Unlock()

		if reconnect {
			m.scheduleReconnect()
		}
	}()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			m.handleBinary(data)
		case websocket.TextMessage:
			m.handleJSON(data)
		}
	}
}

func (m *Manager) handleBinary(frame []byte) {
	ticks, err := wire.Decode(frame)
	if err != nil {
		m.logger.Warn("feed: malformed frame, resyncing on next frame", "error", err)
	}
	m.dispatch(ticks)
}

// fallbackTick is the JSON tick shape accepted when binary mode is
// disabled upstream.
type fallbackTick struct {
	InstrumentToken uint32  `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
}

func (m *Manager) handleJSON(data []byte) {
	var ft fallbackTick
	if err := json.Unmarshal(data, &ft); err != nil {
		return
	}
	if ft.InstrumentToken == 0 {
		return
	}
	m.dispatch([]wire.Tick{{InstrumentToken: ft.InstrumentToken, Price: ft.LastPrice}})
}

func (m *Manager) dispatch(ticks []wire.Tick) {
	m.handlerMu.RLock()
	h := m.handler
	m.handlerMu.RUnlock()
	if h == nil {
		return
	}
	for _, t := range ticks {
		m.safeDispatch(h, t)
	}
}

// safeDispatch recovers from a panicking handler so one bad tick never
// tears down the read loop.
func (m *Manager) safeDispatch(h TickHandler, t wire.Tick) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("feed: tick handler panicked", "recovered", r)
		}
	}()
	h(t.InstrumentToken, t.Price)
}

func (m *Manager) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			sameConn := m.conn == conn
			m.mu.Unlock()
			if !sameConn {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// scheduleReconnect arms a single fixed-delay reconnect timer.
func (m *Manager) scheduleReconnect() {
	time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		shouldReconnect := m.shouldReconnect
		m.mu.Unlock()
		if !shouldReconnect {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeDelay)
		defer cancel()
		if err := m.connectOnce(ctx); err != nil {
			m.logger.Warn("feed: reconnect attempt failed, will retry", "error", err)
			m.scheduleReconnect()
		}
	})
}

// Close permanently shuts down the manager, stopping all loops.
func (m *Manager) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return m.Disconnect()
}
