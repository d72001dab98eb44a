package session

import "sync"

// pendingTable correlates outbound call uids with their waiting
// handles. It is owned by exactly one session: uids start at 0, grow
// monotonically for the session's lifetime, and are never reused, so a
// late reply for a completed call can never match a newer one.
//
// register and take are safe to call concurrently from the dispatch
// path and a cancellation path; removal under the lock guarantees each
// handle completes at most once.
type pendingTable struct {
	mu      sync.Mutex
	next    uint64
	calls   map[uint64]*Call
	drained bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[uint64]*Call)}
}

// nextUID returns a fresh identifier, starting at 0.
func (t *pendingTable) nextUID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	uid := t.next
	t.next++
	return uid
}

// register stores a pending call. After drain it completes the call
// immediately with err instead, so a call racing Close cannot hang.
func (t *pendingTable) register(c *Call, closedErr error) {
	t.mu.Lock()
	if t.drained {
		t.mu.Unlock()
		c.complete(Result{Err: closedErr})
		return
	}
	t.calls[c.UID] = c
	t.mu.Unlock()
}

// take removes and returns the pending call for uid. A miss means the
// uid was never issued, already resolved, or drained: the caller logs
// and drops, never crashes.
func (t *pendingTable) take(uid uint64) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[uid]
	if ok {
		delete(t.calls, uid)
	}
	return c, ok
}

// drain fails every still-pending call with err and marks the table so
// later registrations fail fast. Invoked at session teardown.
func (t *pendingTable) drain(err error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[uint64]*Call)
	t.drained = true
	t.mu.Unlock()

	for _, c := range calls {
		c.complete(Result{Err: err})
	}
}

// size reports the number of in-flight calls.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
