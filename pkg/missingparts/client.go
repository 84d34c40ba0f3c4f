package missingparts

import "context"

// Client is one peer session's view into a Tracker: the set of parts it has
// offered, and the ability to accept one of them for fetching. All of its
// state lives under the owning Tracker's mutex; Client itself holds none.
type Client[P comparable] struct {
	tracker *Tracker[P]
	offered map[P]struct{}
}

// Offer records that this client has part available, in state (Approved
// offers skip the tracker's Approver). Returns true the first time this
// client offers part; a repeat offer is a no-op returning false.
func (c *Client[P]) Offer(part P, state OfferState) bool {
	t := c.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, already := c.offered[part]; already {
		return false
	}
	c.offered[part] = struct{}{}

	s := t.stateForLocked(part)
	s.offeringClients[c] = struct{}{}
	if state == Approved || t.approver.Approve(part) {
		s.approved = true
	}
	t.wakeLocked()
	return true
}

// Accept suspends until some part offered by this client is required,
// approved, and not already accepted by another client, then returns a
// PartPromise for it. It re-scans on every tracker change rather than
// trusting any single wakeup to mean "the part I want is ready".
func (c *Client[P]) Accept(ctx context.Context) (*PartPromise[P], error) {
	t := c.tracker
	for {
		t.mu.Lock()
		for part := range c.offered {
			s := t.parts[part]
			if s != nil && s.eligibleFor(c) {
				s.acceptedBy = c
				t.mu.Unlock()
				return &PartPromise[P]{tracker: t, client: c, part: part}, nil
			}
		}
		ch := t.notify
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drop disconnects this client: it is removed from every part's
// offering-clients set, any part it had accepted is released for another
// client to accept, and its own offer set is cleared.
func (c *Client[P]) Drop() {
	t := c.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	for part := range c.offered {
		s, ok := t.parts[part]
		if !ok {
			continue
		}
		delete(s.offeringClients, c)
		if s.acceptedBy == c {
			s.acceptedBy = nil
		}
	}
	c.offered = make(map[P]struct{})
	t.wakeLocked()
}
