package protocol

import (
	"sync"
	"time"

	"github.com/J-Pabon/ouisync/pkg/crypto"
)

// ConnectionState is a per-connection state machine (§4.6): any error
// before Active drives a retry with exponential backoff; reaching Active
// means the handshake succeeded and a peer id is known.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateHandshaking
	StateActive
	StateReleased
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Backoff computes the exponential retry delay for connection attempt
// number n (n=0 is the first attempt), starting at 100ms and doubling
// without an upper bound (§4.6, §5).
func Backoff(n int) time.Duration {
	const initial = 100 * time.Millisecond
	d := initial
	for i := 0; i < n; i++ {
		d *= 2
	}
	return d
}

// PeerInfo is a snapshot of one active connection, as surfaced through a
// Registry.
type PeerInfo struct {
	RuntimeID crypto.WriterID
	Address   string
	State     ConnectionState
}

// ConnectionPermit deduplicates concurrent dial attempts to the same peer
// address: AcquireOutbound returns ok=false if a connection attempt to that
// address is already in flight or already active.
type ConnectionPermit struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewConnectionPermit() *ConnectionPermit {
	return &ConnectionPermit{pending: make(map[string]struct{})}
}

// AcquireOutbound reserves address for a new outbound attempt. ok is false
// if one is already in flight; the caller must not dial in that case.
func (p *ConnectionPermit) AcquireOutbound(address string) (release func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.pending[address]; busy {
		return nil, false
	}
	p.pending[address] = struct{}{}
	return func() {
		p.mu.Lock()
		delete(p.pending, address)
		p.mu.Unlock()
	}, true
}

// Registry tracks the set of peers currently in ConnectionState.Active and
// invokes its onChange callback as connections join and leave it.
type Registry struct {
	mu    sync.RWMutex
	peers map[crypto.WriterID]PeerInfo

	onChange func(runtimeID crypto.WriterID, connected bool)
}

// NewRegistry creates an empty Registry. onChange, if non-nil, is invoked
// (outside the registry's lock) every time a peer joins or leaves.
func NewRegistry(onChange func(runtimeID crypto.WriterID, connected bool)) *Registry {
	return &Registry{peers: make(map[crypto.WriterID]PeerInfo), onChange: onChange}
}

// Join records a peer as Active. Replaces any existing entry for the same
// runtime id (e.g. a reconnect over a different address).
func (r *Registry) Join(info PeerInfo) {
	r.mu.Lock()
	_, existed := r.peers[info.RuntimeID]
	info.State = StateActive
	r.peers[info.RuntimeID] = info
	r.mu.Unlock()

	if !existed && r.onChange != nil {
		r.onChange(info.RuntimeID, true)
	}
}

// Leave removes a peer, e.g. once its connection is Released.
func (r *Registry) Leave(runtimeID crypto.WriterID) {
	r.mu.Lock()
	_, existed := r.peers[runtimeID]
	delete(r.peers, runtimeID)
	r.mu.Unlock()

	if existed && r.onChange != nil {
		r.onChange(runtimeID, false)
	}
}

// Snapshot returns every currently active peer.
func (r *Registry) Snapshot() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerInfo, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, info)
	}
	return out
}

// Contains reports whether runtimeID is currently active.
func (r *Registry) Contains(runtimeID crypto.WriterID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[runtimeID]
	return ok
}
