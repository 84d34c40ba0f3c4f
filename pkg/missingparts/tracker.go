package missingparts

import "sync"

// OfferState is the approval a client attaches when it offers a part.
type OfferState int

const (
	// Pending subjects the offer to the tracker's Approver before it
	// becomes eligible for acceptance.
	Pending OfferState = iota
	// Approved makes the offer immediately eligible, regardless of quota.
	Approved
)

// Approver decides whether an offered part should be pre-approved. It is
// consulted only for offers made with Pending; Approved offers skip it.
type Approver[P comparable] interface {
	Approve(part P) bool
}

// NullApprover approves every part unconditionally, matching "pre-approved
// if no quota is configured".
type NullApprover[P comparable] struct{}

func (NullApprover[P]) Approve(P) bool { return true }

type partState[P comparable] struct {
	offeringClients map[*Client[P]]struct{}
	acceptedBy      *Client[P]
	required        bool
	approved        bool
}

func (s *partState[P]) eligibleFor(c *Client[P]) bool {
	if !s.required || !s.approved || s.acceptedBy != nil {
		return false
	}
	_, offered := s.offeringClients[c]
	return offered
}

// Tracker deduplicates outstanding fetch requests for parts of type P across
// client sessions. All of its own state is serialized under one mutex;
// waiters (Client.Accept) subscribe to a channel that is closed and replaced
// on every change, so they always re-scan rather than trust the signal to
// carry data.
type Tracker[P comparable] struct {
	mu       sync.Mutex
	parts    map[P]*partState[P]
	approver Approver[P]
	notify   chan struct{}
}

// NewTracker creates an empty tracker. A nil approver is replaced with
// NullApprover.
func NewTracker[P comparable](approver Approver[P]) *Tracker[P] {
	if approver == nil {
		approver = NullApprover[P]{}
	}
	return &Tracker[P]{
		parts:    make(map[P]*partState[P]),
		approver: approver,
		notify:   make(chan struct{}),
	}
}

// wakeLocked broadcasts a change to every waiter. Must be called with mu
// held.
func (t *Tracker[P]) wakeLocked() {
	close(t.notify)
	t.notify = make(chan struct{})
}

func (t *Tracker[P]) stateForLocked(part P) *partState[P] {
	s, ok := t.parts[part]
	if !ok {
		s = &partState[P]{offeringClients: make(map[*Client[P]]struct{})}
		t.parts[part] = s
	}
	return s
}

// Require marks part as actually wanted. Idempotent; notifies acceptors if
// the part is already offered.
func (t *Tracker[P]) Require(part P) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stateForLocked(part)
	if s.required {
		return
	}
	s.required = true
	t.wakeLocked()
}

// Approve marks part as quota-cleared. Idempotent; notifies acceptors if the
// part is already required and offered.
func (t *Tracker[P]) Approve(part P) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stateForLocked(part)
	if s.approved {
		return
	}
	s.approved = true
	t.wakeLocked()
}

// Status reports part's current tracked state, for tests and diagnostics.
func (t *Tracker[P]) Status(part P) (required, approved, accepted bool, offeringCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.parts[part]
	if !ok {
		return false, false, false, 0
	}
	return s.required, s.approved, s.acceptedBy != nil, len(s.offeringClients)
}

// NewClient registers a new client session against this tracker.
func (t *Tracker[P]) NewClient() *Client[P] {
	return &Client[P]{tracker: t, offered: make(map[P]struct{})}
}
