package broker

import (
	"sync"
	"time"
)

// callResult is the terminal state of a pending call: a raw reply body or a
// failure.
type callResult struct {
	body []byte
	err  error
}

// pendingCall is a single outstanding RPC awaiting its correlated reply.
// Exactly one of {reply, timeout, cancellation, teardown} resolves it; the
// single-assignment slot is a buffered channel guarded by sync.Once so the
// losing paths observe it already resolved and no-op.
type pendingCall struct {
	id        string
	createdAt time.Time

	once sync.Once
	done chan callResult
}

func newPendingCall(id string) *pendingCall {
	return &pendingCall{
		id:        id,
		createdAt: time.Now(),
		done:      make(chan callResult, 1),
	}
}

// resolve assigns the call's result. Returns true for the winning path,
// false when the call was already resolved.
func (p *pendingCall) resolve(body []byte, err error) bool {
	won := false
	p.once.Do(func() {
		p.done <- callResult{body: body, err: err}
		won = true
	})
	return won
}

// callTable is the correlation table: correlation id -> pending call.
// Publishing tasks insert concurrently, the reply dispatcher removes by id,
// and per-call timers remove on expiry; a single mutex covers all three.
type callTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[string]*pendingCall)}
}

// add registers a call under its correlation id.
func (t *callTable) add(p *pendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[p.id] = p
}

// remove looks up and deletes the call for a correlation id. The second
// return is false for unknown ids (late replies, foreign messages).
func (t *callTable) remove(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return p, ok
}

// drain empties the table and returns every outstanding call, used on
// connection teardown to fail them all.
func (t *callTable) drain() []*pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*pendingCall, 0, len(t.calls))
	for _, p := range t.calls {
		out = append(out, p)
	}
	t.calls = make(map[string]*pendingCall)
	return out
}

// size returns the number of outstanding calls.
func (t *callTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
