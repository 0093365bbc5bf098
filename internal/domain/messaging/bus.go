// Package messaging routes extension messages between isolated execution
// contexts and correlates request/response pairs.
//
// The host wires one channel per execution context it spins up. Payloads
// are opaque JSON values; the bus never interprets them. Message ids come
// from a counter owned by the bus instance, so independent buses (tests
// included) never share id space.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/shared/types"
)

// DefaultCapacity bounds a delivery channel when the host does not
// configure one.
const DefaultCapacity = 64

var (
	// ErrTimeout and ErrCanceled are the two expected failures of
	// SendAndWait; both are distinguishable from hard channel failures.
	ErrTimeout  = errors.New("timed out waiting for response")
	ErrCanceled = errors.New("response correlator canceled")

	ErrChannelClosed     = errors.New("delivery channel closed")
	ErrNoChannel         = errors.New("no channel registered for target")
	ErrResponseTarget    = errors.New("responses must go through HandleResponse")
	ErrUnsupportedTarget = errors.New("native messaging is not supported")
)

// messagingErr lifts a bus-local failure into the terminal taxonomy.
func messagingErr(err error) error {
	return fmt.Errorf("%w: %w", types.ErrMessaging, err)
}

// Channel is the receive side of one execution context's delivery queue.
type Channel struct {
	C    <-chan types.ExtensionMessage
	ch   chan types.ExtensionMessage
	done chan struct{}
	once sync.Once
}

func newChannel(capacity int) *Channel {
	ch := make(chan types.ExtensionMessage, capacity)
	return &Channel{C: ch, ch: ch, done: make(chan struct{})}
}

// Done is closed when the bus drops the channel.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) close() {
	c.once.Do(func() { close(c.done) })
}

type correlator struct {
	owner string
	ch    chan types.MessageResponse
}

type tabKey struct {
	extensionID string
	tabID       int
}

// Bus is the messaging registry: background channels per extension,
// content-script channels per (extension, tab), and pending response
// correlators.
type Bus struct {
	mu         sync.RWMutex
	background map[string]*Channel
	content    map[tabKey]*Channel
	pending    map[uint64]*correlator
	nextID     atomic.Uint64
	capacity   int
	logger     *zap.Logger
}

// NewBus creates a messaging bus with the given channel capacity.
func NewBus(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		background: make(map[string]*Channel),
		content:    make(map[tabKey]*Channel),
		pending:    make(map[uint64]*correlator),
		capacity:   capacity,
		logger:     logger,
	}
}

// NextID allocates a fresh message id. Ids are monotonic per bus and
// never reused.
func (b *Bus) NextID() uint64 {
	return b.nextID.Add(1)
}

// RegisterChannel wires an extension's background context. An existing
// channel for the extension is dropped first.
func (b *Bus) RegisterChannel(extensionID string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.background[extensionID]; ok {
		old.close()
	}
	ch := newChannel(b.capacity)
	b.background[extensionID] = ch
	return ch
}

// RegisterContentScriptChannel wires an extension's content-script
// context in one tab.
func (b *Bus) RegisterContentScriptChannel(extensionID string, tabID int) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := tabKey{extensionID: extensionID, tabID: tabID}
	if old, ok := b.content[key]; ok {
		old.close()
	}
	ch := newChannel(b.capacity)
	b.content[key] = ch
	return ch
}

// RemoveExtension drops the background channel, every content-script
// channel, and any pending correlators owned by the extension. Called on
// disable/uninstall.
func (b *Bus) RemoveExtension(extensionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.background[extensionID]; ok {
		ch.close()
		delete(b.background, extensionID)
	}
	for key, ch := range b.content {
		if key.extensionID == extensionID {
			ch.close()
			delete(b.content, key)
		}
	}
	for id, c := range b.pending {
		if c.owner == extensionID {
			close(c.ch)
			delete(b.pending, id)
		}
	}
}

// RemoveContentScript drops only the one per-tab channel. The extension's
// other tabs and its background channel are untouched. Called on tab
// close.
func (b *Bus) RemoveContentScript(extensionID string, tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := tabKey{extensionID: extensionID, tabID: tabID}
	if ch, ok := b.content[key]; ok {
		ch.close()
		delete(b.content, key)
	}
}

// Send routes a message by its target. The message id is assigned here if
// the caller has not reserved one. Send suspends while the backing
// channel is at capacity; ctx bounds that wait.
func (b *Bus) Send(ctx context.Context, from string, msg *types.ExtensionMessage) error {
	if msg.ID == 0 {
		msg.ID = b.NextID()
	}
	if msg.Sender.ExtensionID == "" {
		msg.Sender.ExtensionID = from
	}

	switch msg.Target.Kind {
	case types.TargetBackground, types.TargetPopup, types.TargetOptions:
		// Popup and options pages share the background delivery point.
		return b.deliverBackground(ctx, from, msg)

	case types.TargetContentScript:
		b.mu.RLock()
		ch, ok := b.content[tabKey{extensionID: from, tabID: msg.Target.TabID}]
		b.mu.RUnlock()
		if !ok {
			// The tab has no content script from this extension; not an error.
			b.logger.Debug("content script message dropped",
				zap.String("extension_id", from),
				zap.Int("tab_id", msg.Target.TabID),
			)
			return nil
		}
		return b.deliver(ctx, ch, msg)

	case types.TargetAllContentScripts:
		b.mu.RLock()
		var channels []*Channel
		for key, ch := range b.content {
			if key.extensionID == from {
				channels = append(channels, ch)
			}
		}
		b.mu.RUnlock()
		for _, ch := range channels {
			if err := b.deliver(ctx, ch, msg); err != nil {
				return err
			}
		}
		return nil

	case types.TargetExtension:
		// Cross-extension messaging; the host has already checked
		// permission before handing the message to the bus.
		return b.deliverBackground(ctx, msg.Target.ExtensionID, msg)

	case types.TargetResponse:
		return messagingErr(ErrResponseTarget)

	case types.TargetNative:
		return messagingErr(fmt.Errorf("%w: %s", ErrUnsupportedTarget, msg.Target.Application))

	default:
		return messagingErr(fmt.Errorf("unknown message target %q", msg.Target.Kind))
	}
}

func (b *Bus) deliverBackground(ctx context.Context, extensionID string, msg *types.ExtensionMessage) error {
	b.mu.RLock()
	ch, ok := b.background[extensionID]
	b.mu.RUnlock()
	if !ok {
		return messagingErr(fmt.Errorf("%w: extension %s", ErrNoChannel, extensionID))
	}
	return b.deliver(ctx, ch, msg)
}

// deliver performs the bounded-channel send without holding the registry
// lock, so a slow receiver cannot block registration traffic.
func (b *Bus) deliver(ctx context.Context, ch *Channel, msg *types.ExtensionMessage) error {
	select {
	case ch.ch <- *msg:
		return nil
	case <-ch.done:
		return messagingErr(ErrChannelClosed)
	case <-ctx.Done():
		return messagingErr(ctx.Err())
	}
}

// SendAndWait is the sole request/response primitive. It registers a
// one-shot correlator under the message's id, sends, and races the
// correlator against the timeout. The timeout path removes the
// correlator deterministically so a late response cannot resurrect a
// completed call.
func (b *Bus) SendAndWait(ctx context.Context, from string, msg *types.ExtensionMessage, timeout time.Duration) (types.MessageResponse, error) {
	msg.ExpectsResponse = true
	msg.ID = b.NextID()

	c := &correlator{owner: from, ch: make(chan types.MessageResponse, 1)}
	b.mu.Lock()
	b.pending[msg.ID] = c
	b.mu.Unlock()

	if err := b.Send(ctx, from, msg); err != nil {
		b.dropCorrelator(msg.ID)
		return types.MessageResponse{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-c.ch:
		if !ok {
			return types.MessageResponse{}, messagingErr(ErrCanceled)
		}
		return resp, nil

	case <-timer.C:
		if resolved, resp := b.resolveLate(msg.ID, c); resolved {
			return resp, nil
		}
		return types.MessageResponse{}, messagingErr(fmt.Errorf("%w after %s", ErrTimeout, timeout))

	case <-ctx.Done():
		b.dropCorrelator(msg.ID)
		return types.MessageResponse{}, messagingErr(fmt.Errorf("%w: %w", ErrCanceled, ctx.Err()))
	}
}

// HandleResponse is the only way to resolve a pending correlator. A
// response for an unknown or already-resolved id is a silent no-op.
func (b *Bus) HandleResponse(messageID uint64, resp types.MessageResponse) {
	b.mu.Lock()
	c, ok := b.pending[messageID]
	if ok {
		delete(b.pending, messageID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	c.ch <- resp
}

// PendingResponses returns the number of outstanding correlators.
func (b *Bus) PendingResponses() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

func (b *Bus) dropCorrelator(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// resolveLate handles the race where a response lands between the timer
// firing and the correlator being removed: the delivered response wins.
func (b *Bus) resolveLate(id uint64, c *correlator) (bool, types.MessageResponse) {
	b.mu.Lock()
	_, stillPending := b.pending[id]
	if stillPending {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if stillPending {
		return false, types.MessageResponse{}
	}
	select {
	case resp, ok := <-c.ch:
		if ok {
			return true, resp
		}
	default:
	}
	return false, types.MessageResponse{}
}
