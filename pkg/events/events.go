package events

import (
	"sync"
	"time"

	"github.com/J-Pabon/ouisync/pkg/crypto"
)

// EventType identifies the shape of an Event's Payload.
type EventType string

const (
	// EventProtocolVersionMismatch fires when a peer's handshake advertises
	// a protocol version strictly greater than ours (§4.6).
	EventProtocolVersionMismatch EventType = "protocol_version_mismatch"
	// EventPeerSetChange fires whenever a connection enters or leaves the
	// Active state tracked by a peer Registry.
	EventPeerSetChange EventType = "peer_set_change"
	// EventRepositoryChanged fires on repository-content changes; today the
	// only cause is BlockReceived.
	EventRepositoryChanged EventType = "repository_changed"
)

// RepositoryChangeCause distinguishes the kinds of repository_changed event.
type RepositoryChangeCause string

// CauseBlockReceived is the only cause emitted today: a missing block was
// fetched, stored, and marked present in the index.
const CauseBlockReceived RepositoryChangeCause = "block_received"

// ProtocolVersionMismatchPayload is Event.Payload for
// EventProtocolVersionMismatch.
type ProtocolVersionMismatchPayload struct {
	PeerVersion uint32
	OurVersion  uint32
}

// PeerSetChangePayload is Event.Payload for EventPeerSetChange. RuntimeID is
// the peer's authenticated runtime identity as established by a protocol
// Handshake, not its (unrelated) per-device install id.
type PeerSetChangePayload struct {
	RuntimeID crypto.WriterID
	Connected bool
}

// RepositoryChangedPayload is Event.Payload for EventRepositoryChanged.
type RepositoryChangedPayload struct {
	RepositoryID crypto.RepositoryID
	Cause        RepositoryChangeCause
	BlockID      crypto.BlockID
}

// Event is one observability notification, fed to subscribers in arrival
// order but with no ordering promised across distinct subscribers.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Broker distributes events published by any part of the core to every
// current subscriber. Publish never blocks on a slow subscriber: a full
// subscriber buffer drops the event rather than stall the publisher.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker. Call Start to begin distribution.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker's distribution loop. Subsequent Publish calls
// return without delivering anything.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts event to every current subscriber. If event.Timestamp
// is zero it is stamped with the current time.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
