package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"nepse_watch/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	helloTimeout     = 15 * time.Second
	maxRetries       = 10
)

var (
	errReconnectRequested = errors.New("gateway requested reconnect")
	errInvalidSession     = errors.New("gateway invalidated session")
	errZombieConnection   = errors.New("heartbeat not acknowledged")
)

// MessageHandler receives every MESSAGE_CREATE not authored by a bot.
type MessageHandler func(ctx context.Context, msg Message)

// Gateway keeps a websocket session with the Discord gateway and forwards
// chat messages to a handler. It reconnects with backoff on any failure.
type Gateway struct {
	url     string
	token   string
	intents int
	handler MessageHandler
	onState func(connected bool)

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	seq       atomic.Int64 // last dispatch sequence, -1 before the first
	ackWait   atomic.Bool
	selfID    atomic.Value // string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewGateway creates a gateway client. onState may be nil.
func NewGateway(url, token string, intents int, handler MessageHandler, onState func(bool)) *Gateway {
	g := &Gateway{
		url:     url,
		token:   token,
		intents: intents,
		handler: handler,
		onState: onState,
		logger:  slog.Default().With("module", "discord_gateway"),
	}
	g.seq.Store(-1)
	g.selfID.Store("")
	return g
}

// Connect starts the connection loop in the background
func (g *Gateway) Connect(ctx context.Context) error {
	if g.token == "" {
		return errors.New("discord token is empty")
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a session is currently identified
func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

func (g *Gateway) connectionLoop(ctx context.Context) {
	defer g.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := g.connect(ctx); err != nil {
			g.logger.Warn("Discord gateway connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
		} else {
			retryCount = 0
			err := g.session(ctx)
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("Discord gateway session ended", slog.Any("error", err))
		}

		delay := infra.CalculateBackoff(retryCount)
		retryCount++
		if retryCount > maxRetries {
			retryCount = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connect dials the gateway. Hello and Identify happen in session.
func (g *Gateway) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, g.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	return nil
}

// session runs Hello -> Identify -> heartbeat + read loop until the
// connection fails or ctx is done.
func (g *Gateway) session(ctx context.Context) error {
	defer g.closeConnection()

	interval, err := g.readHello()
	if err != nil {
		return err
	}
	if err := g.identify(); err != nil {
		return err
	}

	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	g.setState(true)

	conn := g.currentConn()
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	g.ackWait.Store(false)
	g.wg.Add(1)
	go g.heartbeatLoop(hbCtx, conn, interval)

	// Unblock ReadMessage on shutdown
	go func() {
		<-hbCtx.Done()
		g.dropConnection(conn)
	}()

	return g.readLoop(ctx)
}

func (g *Gateway) readHello() (time.Duration, error) {
	conn := g.currentConn()
	if conn == nil {
		return 0, errors.New("no conn")
	}
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var p payload
	if err := json.Unmarshal(msg, &p); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}
	if p.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", p.Op)
	}
	var hello helloData
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid heartbeat interval %d", hello.HeartbeatInterval)
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (g *Gateway) identify() error {
	return g.send(opIdentify, identifyData{
		Token:   g.token,
		Intents: g.intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "nepse-watch",
			Device:  "nepse-watch",
		},
	})
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	defer g.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.ackWait.Load() {
				g.logger.Warn("Heartbeat not acknowledged, reconnecting", slog.Any("error", errZombieConnection))
				g.dropConnection(conn)
				return
			}
			if err := g.heartbeat(); err != nil {
				g.logger.Warn("Heartbeat failed", slog.Any("error", err))
				g.dropConnection(conn)
				return
			}
		}
	}
}

func (g *Gateway) heartbeat() error {
	g.ackWait.Store(true)
	seq := g.seq.Load()
	if seq < 0 {
		return g.send(opHeartbeat, nil)
	}
	return g.send(opHeartbeat, seq)
}

func (g *Gateway) send(op int, data interface{}) error {
	d, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(payload{Op: op, D: d})
	if err != nil {
		return err
	}
	return g.threadSafeWrite(websocket.TextMessage, b)
}

func (g *Gateway) threadSafeWrite(msgType int, data []byte) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.conn == nil {
		return fmt.Errorf("no conn")
	}
	return g.conn.WriteMessage(msgType, data)
}

func (g *Gateway) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn := g.currentConn()
		if conn == nil {
			return errors.New("connection closed")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := g.handleMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg []byte) error {
	var p payload
	if err := json.Unmarshal(msg, &p); err != nil {
		g.logger.Debug("Dropping undecodable gateway frame", slog.Any("error", err))
		return nil
	}
	if p.S != nil {
		g.seq.Store(*p.S)
	}

	switch p.Op {
	case opDispatch:
		g.handleDispatch(ctx, p)
	case opHeartbeat:
		return g.heartbeat()
	case opHeartbeatACK:
		g.ackWait.Store(false)
	case opReconnect:
		return errReconnectRequested
	case opInvalidSession:
		g.seq.Store(-1)
		return errInvalidSession
	}
	return nil
}

func (g *Gateway) handleDispatch(ctx context.Context, p payload) {
	switch p.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			return
		}
		g.selfID.Store(ready.User.ID)
		g.logger.Info("✅ Logged in to Discord", slog.String("user", ready.User.Username), slog.String("id", ready.User.ID))

	case "MESSAGE_CREATE":
		var m Message
		if err := json.Unmarshal(p.D, &m); err != nil {
			return
		}
		if m.Author.Bot || m.Author.ID == g.selfID.Load().(string) {
			return
		}
		if g.handler == nil {
			return
		}
		// Commands may block on network I/O; keep reading frames meanwhile
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					g.logger.Error("Message handler panic recovered", slog.Any("panic", r))
				}
			}()
			g.handler(ctx, m)
		}()
	}
}

func (g *Gateway) currentConn() *websocket.Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn
}

func (g *Gateway) closeConnection() {
	g.dropConnection(nil)
}

// dropConnection closes the active connection. A non-nil conn restricts the
// close to that connection, so a stale session cannot tear down a newer one.
func (g *Gateway) dropConnection(conn *websocket.Conn) {
	g.mu.Lock()
	if conn != nil && g.conn != conn {
		g.mu.Unlock()
		return
	}
	wasConnected := g.connected
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	g.connected = false
	g.mu.Unlock()

	if wasConnected {
		g.setState(false)
	}
}

func (g *Gateway) setState(connected bool) {
	if g.onState != nil {
		g.onState(connected)
	}
}

// Disconnect stops the loop and waits for in-flight handlers
func (g *Gateway) Disconnect() {
	if g.cancel != nil {
		g.cancel()
	}
	g.closeConnection()
	g.wg.Wait()
}
