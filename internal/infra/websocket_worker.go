package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler supplies stream-specific logic to a WSWorker.
type WSHandler interface {
	// URL returns the full endpoint, including any stream query.
	URL() string
	// OnConnect runs once per (re)connection, before the read loop.
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	// OnMessage is called for every frame. It must not block: the read
	// deadline keeps running while it executes.
	OnMessage(ctx context.Context, msg []byte)
	// ID labels the stream in logs.
	ID() string
}

// WSWorker owns one websocket connection for its whole lifetime: dial,
// read loop, reconnect with exponential backoff, and close on context
// cancellation. Writes are serialized; reads happen only on the worker
// goroutine.
type WSWorker struct {
	handler WSHandler

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout time.Duration
}

// NewWSWorker creates a worker for the given handler.
func NewWSWorker(handler WSHandler) *WSWorker {
	return &WSWorker{
		handler:     handler,
		ReadTimeout: 60 * time.Second,
	}
}

// Start launches the connection loop in its own goroutine.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for the read loop to exit.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("ws connect failed",
				slog.String("id", w.handler.ID()),
				slog.Any("error", err),
				slog.Int("retry", retry))
			delay := ReconnectBackoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.process(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	// The stream server pings periodically; answering keeps the read
	// deadline honest without an app-level ping loop.
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	slog.Info("ws connected", slog.String("id", w.handler.ID()))
	return nil
}

func (w *WSWorker) process(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("ws read error", slog.String("id", w.handler.ID()), slog.Any("error", err))
			}
			w.close()
			return
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// Write sends a frame, serialized against concurrent writers.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.WriteMessage(msgType, data)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
