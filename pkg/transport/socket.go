package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from the peer.
	maxMessageSize = 4096
)

// SocketDialer owns one websocket connection shared by every open room.
// Inbound frames are tagged with a room id and dispatched to the matching
// channel. Losing the connection drops all subscriptions at once; each
// channel's OnClose fires and the first Connect that follows redials.
type SocketDialer struct {
	url   string
	token string
	log   zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*SocketChannel
	done    chan struct{}
	writeMu sync.Mutex
}

func NewSocketDialer(socketURL, token string, log zerolog.Logger) *SocketDialer {
	return &SocketDialer{
		url:   socketURL,
		token: token,
		log:   log.With().Str("transport", "socket").Logger(),
		subs:  make(map[string]*SocketChannel),
	}
}

// Channel returns the subscription handle for one room. The underlying
// connection is established lazily by Connect.
func (d *SocketDialer) Channel(roomID string) *SocketChannel {
	return &SocketChannel{dialer: d, roomID: roomID}
}

func (d *SocketDialer) ensure(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}

	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.url, header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	d.conn = conn
	d.done = make(chan struct{})
	go d.readPump(conn, d.done)
	go d.pingLoop(conn, d.done)
	d.log.Debug().Str("url", d.url).Msg("socket connected")
	return nil
}

// readPump dispatches tagged frames to room handlers. It runs until the
// connection dies, then notifies every registered channel exactly once.
func (d *SocketDialer) readPump(conn *websocket.Conn, done chan struct{}) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			d.dropAll(conn, done, err)
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			d.log.Warn().Err(err).Msg("skipping malformed socket frame")
			continue
		}
		if frame.Type != model.FrameMessage && frame.Type != "" {
			continue
		}

		d.mu.Lock()
		sub := d.subs[frame.Room]
		d.mu.Unlock()
		if sub == nil {
			continue
		}
		sub.deliver(frame.Data)
	}
}

func (d *SocketDialer) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			d.writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

// dropAll tears down the shared connection state and fans the failure out
// to every room's close handler.
func (d *SocketDialer) dropAll(conn *websocket.Conn, done chan struct{}, err error) {
	conn.Close()

	d.mu.Lock()
	if d.conn != conn {
		// Already replaced or deliberately closed.
		d.mu.Unlock()
		return
	}
	d.conn = nil
	closed := make([]*SocketChannel, 0, len(d.subs))
	for _, sub := range d.subs {
		closed = append(closed, sub)
	}
	d.mu.Unlock()

	select {
	case <-done:
		return // Disconnect path, not a failure.
	default:
		close(done)
	}

	d.log.Warn().Err(err).Int("rooms", len(closed)).Msg("socket lost, dropping all subscriptions")
	for _, sub := range closed {
		sub.closed(err)
	}
}

func (d *SocketDialer) write(frame model.Frame) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return errors.New("socket not connected")
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (d *SocketDialer) register(c *SocketChannel) {
	d.mu.Lock()
	d.subs[c.roomID] = c
	d.mu.Unlock()
}

// unregister removes one room's bookkeeping; other rooms' subscriptions
// are untouched. The shared connection closes once no rooms remain.
func (d *SocketDialer) unregister(roomID string) {
	d.mu.Lock()
	delete(d.subs, roomID)
	remaining := len(d.subs)
	conn := d.conn
	done := d.done
	if remaining == 0 {
		d.conn = nil
	}
	d.mu.Unlock()

	if remaining == 0 && conn != nil {
		select {
		case <-done:
		default:
			close(done)
		}
		conn.Close()
	}
}

// SocketChannel is one room's subscription on the shared socket.
type SocketChannel struct {
	dialer *SocketDialer
	roomID string

	mu      sync.Mutex
	handler Handler
	onClose CloseHandler
}

func (c *SocketChannel) OnMessage(h Handler)    { c.mu.Lock(); c.handler = h; c.mu.Unlock() }
func (c *SocketChannel) OnClose(h CloseHandler) { c.mu.Lock(); c.onClose = h; c.mu.Unlock() }

func (c *SocketChannel) Connect(ctx context.Context) error {
	if err := c.dialer.ensure(ctx); err != nil {
		return &ConnectError{Transport: "socket", Room: c.roomID, Err: err}
	}
	c.dialer.register(c)
	if err := c.dialer.write(model.Frame{Room: c.roomID, Type: model.FrameSubscribe}); err != nil {
		c.dialer.unregister(c.roomID)
		return &ConnectError{Transport: "socket", Room: c.roomID, Err: err}
	}
	return nil
}

func (c *SocketChannel) Publish(ctx context.Context, payload model.WirePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &PublishError{Transport: "socket", Room: c.roomID, Err: err}
	}
	if err := c.dialer.write(model.Frame{Room: c.roomID, Type: model.FrameMessage, Data: data}); err != nil {
		return &PublishError{Transport: "socket", Room: c.roomID, Err: err}
	}
	return nil
}

func (c *SocketChannel) Disconnect() error {
	// Best effort: the subscription is gone either way.
	_ = c.dialer.write(model.Frame{Room: c.roomID, Type: model.FrameUnsubscribe})
	c.dialer.unregister(c.roomID)
	return nil
}

func (c *SocketChannel) deliver(raw []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}
	if err := h(raw); err != nil {
		c.dialer.log.Warn().Err(err).Str("room", c.roomID).Msg("handler rejected socket message")
	}
}

func (c *SocketChannel) closed(err error) {
	c.mu.Lock()
	h := c.onClose
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}
