package pending

import "sync"

// Notifier is the single abstraction over "tell every interested client
// instance that a session's queue changed". Whether the signal crosses a
// process boundary or loops back in-process is the implementation's problem;
// subscribers only ever see one channel.
type Notifier interface {
	// Notify signals that the queue for sessionID changed.
	Notify(sessionID string)

	// Subscribe registers a callback for queue-change signals and returns
	// its unregister function. Callbacks must tolerate signals for sessions
	// they do not care about.
	Subscribe(fn func(sessionID string)) func()
}

// LoopbackNotifier fans every signal out to all subscribers, including the
// one that originated the change. Instances sharing one LoopbackNotifier
// model client instances of the same origin.
type LoopbackNotifier struct {
	mu     sync.Mutex
	subs   map[int]func(string)
	nextID int
}

// NewLoopbackNotifier creates an empty notifier.
func NewLoopbackNotifier() *LoopbackNotifier {
	return &LoopbackNotifier{
		subs: make(map[int]func(string)),
	}
}

// Notify invokes every subscriber with the session id. Delivery order across
// subscribers is unspecified; subscribers must treat the persisted store as
// the single source of truth, not the signal.
func (n *LoopbackNotifier) Notify(sessionID string) {
	n.mu.Lock()
	fns := make([]func(string), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(sessionID)
	}
}

// Subscribe registers fn and returns its unregister function.
func (n *LoopbackNotifier) Subscribe(fn func(sessionID string)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}
