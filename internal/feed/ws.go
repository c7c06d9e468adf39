package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmarquez/updownbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// EventHandler receives every decoded book event, in arrival order.
type EventHandler func(domain.BookEvent)

// subscribeCommand is the market-channel subscription payload.
type subscribeCommand struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// WSClient streams the real-time market channel for a set of asset IDs
// and dispatches decoded book events to a handler. It owns the
// connection lifecycle: keep-alive pings, and reconnection with
// exponential backoff, resubscribing to the tracked assets after every
// reconnect. The server sends a fresh book snapshot on subscription, so
// a reconnect naturally resynchronizes state the book lost while
// disconnected.
type WSClient struct {
	url     string
	logger  *slog.Logger
	handler EventHandler

	mu     sync.RWMutex
	conn   *websocket.Conn
	assets []string
	closed bool

	// pingStop ends the ping loop tied to the current connection, so a
	// reconnect never leaves the previous writer running.
	pingStop chan struct{}

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a client for the market-data WebSocket endpoint,
// e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(url string, handler EventHandler, logger *slog.Logger) *WSClient {
	return &WSClient{
		url:     url,
		handler: handler,
		logger:  logger.With(slog.String("component", "feed.ws")),
		done:    make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops. Any
// previously subscribed assets are resubscribed.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: connect: %w", err)
	}

	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if w.pingStop != nil {
		close(w.pingStop)
	}
	w.pingStop = make(chan struct{})

	go w.readLoop()
	go w.pingLoop(conn, w.pingStop)

	if len(w.assets) > 0 {
		if err := w.sendSubscribe(w.assets); err != nil {
			return fmt.Errorf("feed/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe registers the asset IDs for market-channel updates. The
// subscription survives reconnects until Replace or Close.
func (w *WSClient) Subscribe(ctx context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed/ws: not connected")
	}
	if err := w.sendSubscribe(assetIDs); err != nil {
		return fmt.Errorf("feed/ws: subscribe: %w", err)
	}
	w.assets = append(w.assets, assetIDs...)
	return nil
}

// Replace swaps the tracked assets for a new set, used when the engine
// rolls from an expired market to its successor. The market channel has
// no unsubscribe verb worth trusting here; events for stale assets are
// filtered out upstream by token ID.
func (w *WSClient) Replace(ctx context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed/ws: not connected")
	}
	if err := w.sendSubscribe(assetIDs); err != nil {
		return fmt.Errorf("feed/ws: resubscribe: %w", err)
	}
	w.assets = append([]string(nil), assetIDs...)
	return nil
}

// Close shuts down the connection and stops the read and ping loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendSubscribe writes the subscription command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(assetIDs []string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(subscribeCommand{AssetIDs: assetIDs, Type: "MARKET"})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages until disconnect, decoding each into book
// events for the handler. On disconnect it hands off to reconnect.
func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.logger.Warn("read failed, reconnecting", slog.String("error", err.Error()))
			conn.Close()
			w.reconnect()
			return // a fresh readLoop starts inside Connect
		}

		events, err := Decode(message)
		if err != nil {
			w.logger.Warn("dropping undecodable message", slog.String("error", err.Error()))
			continue
		}
		for _, ev := range events {
			w.handler(ev)
		}
	}
}

// pingLoop sends periodic pings to keep one connection alive. It exits
// when the client shuts down or the connection is replaced.
func (w *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			w.logger.Info("reconnected")
			return
		}
		w.logger.Warn("reconnect failed", slog.String("error", err.Error()))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
