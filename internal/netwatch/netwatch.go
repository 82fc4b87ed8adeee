// Package netwatch observes connectivity. The queue and the coordinator
// subscribe to transitions; "online" means connected and the remote API is
// actually reachable.
package netwatch

import "sync"

type State struct {
	Connected bool `json:"connected"`
	Reachable bool `json:"reachable"`
}

func (s State) Online() bool {
	return s.Connected && s.Reachable
}

type Observer interface {
	Current() State
	// OnChange registers a callback fired on every state transition.
	// Callbacks run on the observer's goroutine and must not block.
	OnChange(fn func(State))
}

// notifier is the shared subscriber bookkeeping for observer impls.
type notifier struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
}

func (n *notifier) Current() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *notifier) OnChange(fn func(State)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// set updates state and notifies on change. Notification happens outside
// the lock so a callback may query Current() without deadlocking.
func (n *notifier) set(s State) {
	n.mu.Lock()
	if n.state == s {
		n.mu.Unlock()
		return
	}
	n.state = s
	subs := make([]func(State), len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
