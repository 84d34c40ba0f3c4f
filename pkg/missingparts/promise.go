package missingparts

import "sync"

// PartPromise represents one client's accepted responsibility for fetching
// a part. Exactly one of Complete or Drop should be called; calling neither
// leaks the accepted slot until the client itself is dropped.
type PartPromise[P comparable] struct {
	tracker *Tracker[P]
	client  *Client[P]
	part    P

	mu       sync.Mutex
	resolved bool
}

// Part returns the part this promise is for.
func (p *PartPromise[P]) Part() P { return p.part }

// Complete marks the part fulfilled: it is removed from the tracker
// entirely, and from every client's offer set, not just the holder's.
func (p *PartPromise[P]) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true

	t := p.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.parts[p.part]
	if !ok {
		return
	}
	for client := range s.offeringClients {
		delete(client.offered, p.part)
	}
	delete(t.parts, p.part)
	t.wakeLocked()
}

// Drop releases the accepted slot without completing the part, so any other
// client that has offered it becomes eligible to accept it in turn.
func (p *PartPromise[P]) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true

	t := p.tracker
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.parts[p.part]; ok && s.acceptedBy == p.client {
		s.acceptedBy = nil
	}
	t.wakeLocked()
}
