// Package sync reconciles local sends, remote pushes and backfill pages
// into one room's message store, and keeps the live subscription alive
// through reconnects.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/pkg/localid"
	"github.com/duochat/duochat/pkg/model"
	"github.com/duochat/duochat/pkg/msgstore"
	"github.com/duochat/duochat/pkg/transport"
)

// State is the per-room lifecycle:
// Closed -> Connecting -> Live -> Reconnecting -> Live | Disconnected.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateLive
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyOpen = errors.New("sync: room already open")
	ErrClosed      = errors.New("sync: room closed")
)

// BackfillError reports a failed history page fetch. It is not retried
// automatically; the next explicit LoadOlder tries again.
type BackfillError struct {
	Room string
	Err  error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("backfill room %s: %v", e.Room, e.Err)
}

func (e *BackfillError) Unwrap() error { return e.Err }

// HistoryStore is the persisted-store collaborator behind backward
// pagination. An empty cursor requests the newest page; the returned
// cursor is empty once history is exhausted.
type HistoryStore interface {
	Page(ctx context.Context, roomID, before string, limit int) ([]model.Message, string, error)
}

// Options tune one controller. Zero values get sensible defaults.
type Options struct {
	SelfID string

	PageSize int
	// ConfirmWindow bounds optimistic-echo matching; see msgstore.Confirm.
	ConfirmWindow time.Duration

	ConnectAttempts int
	BackoffBase     time.Duration
	BackoffCap      time.Duration

	Logger zerolog.Logger
	Clock  func() time.Time

	// OnChange fires after any store mutation; OnState after transitions.
	// Both may be nil.
	OnChange func()
	OnState  func(State)
}

// Controller owns one MessageStore and one live channel for one open room.
// It is the single point deciding retry versus surface for every error
// below it.
type Controller struct {
	roomID  string
	ch      transport.Channel
	history HistoryStore
	ids     *localid.Node
	opts    Options
	log     zerolog.Logger

	mu          sync.Mutex
	store       *msgstore.Store
	state       State
	cursor      string
	exhausted   bool
	backfilling bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewController(roomID string, ch transport.Channel, history HistoryStore, ids *localid.Node, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.ConfirmWindow <= 0 {
		opts.ConfirmWindow = msgstore.DefaultConfirmWindow
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 200 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		roomID:  roomID,
		ch:      ch,
		history: history,
		ids:     ids,
		opts:    opts,
		log:     opts.Logger.With().Str("room", roomID).Logger(),
		state:   StateClosed,
	}
}

// OpenRoom connects the live channel, retrying with bounded exponential
// backoff, and pulls the initial backfill page. On terminal connect
// failure the room returns to Closed and the error is surfaced.
func (c *Controller) OpenRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed && c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.store = msgstore.New()
	c.cursor = ""
	c.exhausted = false
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.setState(StateConnecting)

	c.ch.OnMessage(c.handleRaw)
	c.ch.OnClose(c.handleClose)

	if err := c.connectWithBackoff(c.ctx); err != nil {
		c.cancel()
		c.setState(StateClosed)
		return err
	}
	c.setState(StateLive)

	if err := c.fetchLatest(c.ctx); err != nil {
		// Not fatal: the room is live, history can be pulled later.
		c.log.Warn().Err(err).Msg("initial backfill failed")
	}
	return nil
}

// Send validates, appends optimistically and publishes. Whitespace-only
// text is a silent no-op, not an error. A publish failure marks the
// optimistic entry failed and surfaces the transport error; the entry is
// never removed.
func (c *Controller) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	store := c.store
	ctx := c.ctx
	c.mu.Unlock()

	msg := model.Message{
		ID:        c.ids.Next(),
		RoomID:    c.roomID,
		SenderID:  c.opts.SelfID,
		Text:      text,
		Timestamp: c.opts.Clock(),
		Pending:   true,
	}
	store.Append(msg)
	c.notify()

	if err := c.ch.Publish(ctx, msg.ToWire()); err != nil {
		store.MarkFailed(msg.ID)
		c.notify()
		return err
	}
	return nil
}

// LoadOlder pulls the next backfill page. Calls made while a page is in
// flight coalesce into it. After history is exhausted it is a no-op.
func (c *Controller) LoadOlder() error {
	if c.history == nil {
		return nil
	}

	c.mu.Lock()
	if c.state == StateClosed || c.backfilling || c.exhausted {
		c.mu.Unlock()
		return nil
	}
	c.backfilling = true
	before := c.cursor
	store := c.store
	ctx := c.ctx
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.backfilling = false
		c.mu.Unlock()
	}()

	if before == "" {
		// The initial page never landed; retry it to seed the cursor.
		return c.fetchLatestInto(ctx, store)
	}

	page, next, err := c.history.Page(ctx, c.roomID, before, c.opts.PageSize)
	if err != nil {
		return &BackfillError{Room: c.roomID, Err: err}
	}
	if ctx.Err() != nil {
		return ErrClosed
	}

	inserted := store.Prepend(page)
	c.mu.Lock()
	c.cursor = next
	if next == "" {
		c.exhausted = true
	}
	c.mu.Unlock()
	if inserted > 0 {
		c.notify()
	}
	return nil
}

// CloseRoom tears the subscription down and discards the store. In-flight
// backfill and reconnect attempts observe the cancellation and stop
// without mutating state.
func (c *Controller) CloseRoom() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.store = nil
	c.mu.Unlock()

	cancel()
	err := c.ch.Disconnect()
	c.setState(StateClosed)
	return err
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the room's ordered messages for rendering. Nil after
// close.
func (c *Controller) Snapshot() []model.Message {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Snapshot()
}

// handleRaw is the single entry point for inbound deliveries; transports
// call it sequentially per room. Returning an error withholds the
// acknowledgement on broker-style transports.
func (c *Controller) handleRaw(raw []byte) error {
	c.mu.Lock()
	store := c.store
	ctx := c.ctx
	c.mu.Unlock()
	if store == nil || ctx.Err() != nil {
		return ErrClosed
	}

	msg := model.FromWire(raw, c.roomID, c.opts.Clock())

	if msg.SenderID == c.opts.SelfID {
		if store.Confirm(msg, c.opts.ConfirmWindow) {
			c.notify()
			return nil
		}
	}
	if store.Append(msg) {
		c.notify()
	}
	return nil
}

// handleClose reacts to transport-reported disconnection.
func (c *Controller) handleClose(cause error) {
	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	ctx := c.ctx
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(StateReconnecting)
	}
	c.log.Warn().Err(cause).Msg("transport lost, reconnecting")

	go c.reconnect(ctx)
}

func (c *Controller) reconnect(ctx context.Context) {
	if err := c.connectWithBackoff(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error().Err(err).Msg("reconnect budget exhausted")
		c.setState(StateDisconnected)
		return
	}

	// One gap-closing fetch per successful reconnect; the idempotent
	// merge drops whatever the relay happened to deliver twice.
	if err := c.fetchLatest(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("gap-closing backfill failed")
	}
	if ctx.Err() != nil {
		return
	}
	c.setState(StateLive)
}

func (c *Controller) connectWithBackoff(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.opts.ConnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitteredBackoff(c.opts.BackoffBase, c.opts.BackoffCap, attempt)):
			}
		}
		lastErr = c.ch.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		c.log.Debug().Err(lastErr).Int("attempt", attempt+1).Msg("connect failed")
	}
	return lastErr
}

// fetchLatest pulls the newest history page and merges it. It also seeds
// the LoadOlder cursor when no page has seeded it yet.
func (c *Controller) fetchLatest(ctx context.Context) error {
	if c.history == nil {
		return nil
	}
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return ErrClosed
	}
	return c.fetchLatestInto(ctx, store)
}

func (c *Controller) fetchLatestInto(ctx context.Context, store *msgstore.Store) error {
	page, next, err := c.history.Page(ctx, c.roomID, "", c.opts.PageSize)
	if err != nil {
		return &BackfillError{Room: c.roomID, Err: err}
	}
	if ctx.Err() != nil {
		return ErrClosed
	}

	inserted := store.Prepend(page)
	c.mu.Lock()
	// Only the first successful latest-page fetch seeds the cursor; a
	// reconnect gap-close must not rewind pagination already in progress.
	if c.cursor == "" {
		c.cursor = next
		if next == "" {
			c.exhausted = true
		}
	}
	c.mu.Unlock()
	if inserted > 0 {
		c.notify()
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func (c *Controller) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}
