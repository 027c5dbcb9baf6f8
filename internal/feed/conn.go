// Package feed maintains the push connection to the RFQ backend and fans its
// events out to typed topics.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
	"github.com/alanyoungcy/rfqmaker/internal/jsonrpc"
	"github.com/alanyoungcy/rfqmaker/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	defaultPingInterval   = 10 * time.Second
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 15 * time.Second
)

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Conn.
type Config struct {
	URL            string
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	Header         http.Header
}

// Conn is a self-healing websocket connection. Run owns the connection; the
// rest of the methods are safe for concurrent use.
type Conn struct {
	cfg    Config
	events *Events
	table  map[domain.EventType]dispatcher
	logger *slog.Logger

	state atomic.Int32

	mu   sync.Mutex
	subs []jsonrpc.Request
	ws   *websocket.Conn

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewConn creates a connection that is not yet running.
func NewConn(cfg Config, logger *slog.Logger) *Conn {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	events := NewEvents()
	logger = logger.With(slog.String("component", "feed"))
	// A missed fill leaves a signed order unsettled, so every drop is logged.
	events.OrderToExecute.OnDrop(func(d domain.DetailsToExecute) {
		logger.Warn("fill dropped: subscriber backlog full",
			slog.String("maker_order", d.MakerOrderHash.Hex()),
			slog.String("taker_order", d.TakerOrderHash.Hex()))
	})
	return &Conn{
		cfg:    cfg,
		events: events,
		table:  events.dispatchTable(),
		logger: logger,
	}
}

// Events returns the topics this connection publishes into.
func (c *Conn) Events() *Events { return c.events }

// State returns the current connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
	metrics.FeedState.Set(float64(s))
}

// Subscribe registers a subscription request. It is sent now if the
// connection is open, and re-sent every time the connection reopens.
func (c *Conn) Subscribe(method string, params any) error {
	req, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, req)
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	if err := c.send(ws, req); err != nil {
		// The read side will notice a dead socket; the subscription is
		// re-sent on the next open.
		c.logger.Warn("send subscription failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Run connects and keeps the connection alive until ctx is cancelled. After
// every close it waits ReconnectDelay and reconnects, forever.
func (c *Conn) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			metrics.FeedReconnects.Inc()
		}

		err := c.session(ctx, attempt)
		if ctx.Err() != nil {
			return nil
		}
		c.setState(StateClosed)
		c.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", c.cfg.ReconnectDelay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session runs one connection from dial to close.
func (c *Conn) session(ctx context.Context, attempt int) error {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	subs := append([]jsonrpc.Request(nil), c.subs...)
	c.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = ws.Close()
		case <-done:
		}
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ws, done)
	}()

	c.setState(StateOpen)
	c.logger.Info("feed connected", slog.Int("attempt", attempt), slog.Int("subscriptions", len(subs)))
	c.events.Ready.Publish(Ready{Attempt: attempt, At: time.Now()})

	for _, req := range subs {
		if err := c.send(ws, req); err != nil {
			c.logger.Warn("resubscribe failed",
				slog.String("method", req.Method),
				slog.String("error", err.Error()),
			)
		}
	}

	// Unanswered pings never end a session: there is no read deadline, so
	// only the transport closing or failing does.
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		c.handleMessage(raw)
	}
}

// pingLoop sends a ping every PingInterval. A failed ping is logged only;
// disconnects are detected by the read side.
func (c *Conn) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (c *Conn) send(ws *websocket.Conn, req jsonrpc.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// handleMessage decodes one frame and routes it. Bad frames never close the
// connection.
func (c *Conn) handleMessage(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("malformed feed message", slog.String("error", err.Error()), slog.Int("bytes", len(raw)))
		return
	}
	if msg.Error != nil {
		c.logger.Warn("feed error response", slog.String("id", string(msg.ID)), slog.String("error", msg.Error.Error()))
		return
	}

	ev, ok, err := decodeEvent(msg)
	if err != nil {
		c.logger.Warn("malformed feed event", slog.String("error", err.Error()))
		return
	}
	if !ok {
		c.logger.Debug("feed ack", slog.String("id", string(msg.ID)))
		return
	}

	dispatch, known := c.table[ev.Type]
	if !known {
		c.logger.Debug("unknown feed event", slog.String("type", string(ev.Type)))
		return
	}
	if err := dispatch(ev.Data); err != nil {
		c.logger.Warn("malformed feed event payload",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.FeedEvents.WithLabelValues(string(ev.Type)).Inc()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "context canceled"
	}
	return err.Error()
}
