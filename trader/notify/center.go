// Package notify tracks submitted transactions and turns their progress into
// user facing notifications.
//
// A transaction moves submitted -> broadcast -> included (success or failure),
// or submitted -> error. Every transition emits one Notification. The broadcast
// state also opens a progress dialog; closing it, by hand or after a timeout,
// emits a toast progress notification. Notifications are delivered in the order
// they were emitted, so they stay FIFO per transaction id.
package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "notify").Logger()
}

// DefaultDialogTimeout closes the broadcast dialog when nobody dismisses it
const DefaultDialogTimeout = 6 * time.Second

type tracker struct {
	state      State
	messages   Messages
	dialogOpen bool
	dialog     *time.Timer
}

// Center tracks transactions and dispatches their notifications to subscribers
type Center struct {
	submitter     Submitter
	dialogTimeout time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	trackers map[string]*tracker

	subMu       sync.RWMutex
	subscribers map[string]func(Notification)

	queueMu sync.Mutex
	queue   []Notification
	wake    chan struct{}
	done    chan struct{}
}

// Option configures a Center
type Option func(*Center)

// WithDialogTimeout sets how long the broadcast dialog stays open, zero keeps it open until dismissed
func WithDialogTimeout(d time.Duration) Option {
	return func(c *Center) {
		c.dialogTimeout = d
	}
}

// WithClock replaces the clock used for notification timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Center) {
		c.now = now
	}
}

// NewCenter creates a center submitting through submitter and starts its dispatcher
func NewCenter(submitter Submitter, opts ...Option) *Center {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Center{
		submitter:     submitter,
		dialogTimeout: DefaultDialogTimeout,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		trackers:      make(map[string]*tracker),
		subscribers:   make(map[string]func(Notification)),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatch()
	return c
}

// Submit hands txBytes to the submitter and tracks the transaction under a new id.
// A submission that fails right away is reported as an error notification, not as a return value.
// Submit returns ErrClosed once Close was called.
func (c *Center) Submit(txBytes []byte, messages Messages) (string, error) {
	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.trackers[id] = &tracker{state: StateSubmitted, messages: messages}
	// Close waits for this submission from here on
	c.wg.Add(1)
	c.mu.Unlock()

	statuses, err := c.submitter.Submit(c.ctx, txBytes)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Transaction submission failed")
		c.apply(id, Status{Kind: StatusError, Err: err})
		c.wg.Done()
		return id, nil
	}

	go func() {
		defer c.wg.Done()
		c.track(id, statuses)
	}()
	return id, nil
}

func (c *Center) track(id string, statuses <-chan Status) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			c.apply(id, status)
		}
	}
}

// apply moves the transaction to the state the status implies
func (c *Center) apply(id string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.trackers[id]
	if !ok || t.state.Terminal() {
		log.Warn().Str("id", id).Int("kind", int(status.Kind)).Msg("Ignoring status of finished transaction")
		return
	}

	switch status.Kind {
	case StatusBroadcast:
		if t.state != StateSubmitted {
			log.Warn().Str("id", id).Str("state", string(t.state)).Msg("Ignoring repeated broadcast")
			return
		}
		t.state = StateBroadcast
		t.dialogOpen = true
		if c.dialogTimeout > 0 {
			t.dialog = time.AfterFunc(c.dialogTimeout, func() {
				_ = c.Dismiss(id)
			})
		}
		log.Info().Str("id", id).Str("hash", status.TxHash).Msg("Transaction broadcast")
		c.emit(id, TypeProgress, t.messages.Processing, false)

	case StatusInBlock:
		log.Info().
			Str("id", id).
			Str("hash", status.TxHash).
			Int64("height", status.Height).
			Bool("failed", status.Failed).
			Msg("Transaction included")
		if status.Failed {
			t.state = StateIncludedFailure
			c.emit(id, TypeError, t.messages.Failure, true)
		} else {
			t.state = StateIncludedSuccess
			c.emit(id, TypeSuccess, t.messages.Success, true)
		}

	case StatusError:
		log.Error().Err(status.Err).Str("id", id).Msg("Transaction failed")
		// the error dialog replaces the progress dialog
		t.closeDialog()
		t.state = StateError
		c.emit(id, TypeError, t.messages.Failure, false)
	}

	c.prune(id, t)
}

// Dismiss closes the broadcast dialog of a transaction and emits a toast
// progress notification in its place. Dismissing a closed dialog does nothing.
func (c *Center) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.trackers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if !t.dialogOpen {
		return nil
	}
	t.closeDialog()
	c.emit(id, TypeProgress, t.messages.Processing, true)
	c.prune(id, t)
	return nil
}

// State returns the current state of a tracked transaction
func (c *Center) State(id string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.trackers[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	return t.state, nil
}

func (t *tracker) closeDialog() {
	t.dialogOpen = false
	if t.dialog != nil {
		t.dialog.Stop()
		t.dialog = nil
	}
}

// prune forgets finished transactions once nothing can be dismissed anymore.
// Caller holds c.mu.
func (c *Center) prune(id string, t *tracker) {
	if t.state.Terminal() && !t.dialogOpen {
		delete(c.trackers, id)
	}
}

// emit queues a notification. Caller holds c.mu, so the queue order is the transition order.
func (c *Center) emit(id string, typ NotificationType, message string, toast bool) {
	n := Notification{
		ID:        id,
		Timestamp: c.now().UnixMilli(),
		Type:      typ,
		Message:   message,
		Toast:     toast,
	}

	c.queueMu.Lock()
	c.queue = append(c.queue, n)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Center) dispatch() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case <-c.wake:
			c.drain()
		}
	}
}

func (c *Center) drain() {
	for {
		c.queueMu.Lock()
		pending := c.queue
		c.queue = nil
		c.queueMu.Unlock()

		if len(pending) == 0 {
			return
		}

		c.subMu.RLock()
		subscribers := make([]func(Notification), 0, len(c.subscribers))
		for _, fn := range c.subscribers {
			subscribers = append(subscribers, fn)
		}
		c.subMu.RUnlock()

		for _, n := range pending {
			for _, fn := range subscribers {
				fn(n)
			}
		}
	}
}

// Subscribe registers fn for every notification. fn runs on the dispatcher
// goroutine and must not block. The returned func removes the subscription.
func (c *Center) Subscribe(fn func(Notification)) (unsubscribe func()) {
	key := uuid.NewString()

	c.subMu.Lock()
	c.subscribers[key] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, key)
			c.subMu.Unlock()
		})
	}
}

// SubscribeChan delivers notifications on a buffered channel. Notifications
// are dropped while the buffer is full. unsubscribe closes the channel.
func (c *Center) SubscribeChan(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)

	remove := c.Subscribe(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- n:
		default:
			log.Warn().Str("id", n.ID).Msg("Subscriber too slow, dropping notification")
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			remove()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Close stops tracking and dispatching. Queued notifications are still delivered.
func (c *Center) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	<-c.done

	c.mu.Lock()
	for _, t := range c.trackers {
		t.closeDialog()
	}
	c.mu.Unlock()
}
