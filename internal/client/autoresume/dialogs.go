package autoresume

import "sync"

// DialogRegistry tracks which sessions currently have a manual send-options
// dialog open. While a dialog is open the coordinator must keep its hands
// off that session's queue.
type DialogRegistry struct {
	mu   sync.Mutex
	open map[string]int
}

// NewDialogRegistry creates an empty registry.
func NewDialogRegistry() *DialogRegistry {
	return &DialogRegistry{
		open: make(map[string]int),
	}
}

// Open marks a dialog open for the session and returns its close function.
func (r *DialogRegistry) Open(sessionID string) func() {
	r.mu.Lock()
	r.open[sessionID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.open[sessionID] > 1 {
				r.open[sessionID]--
			} else {
				delete(r.open, sessionID)
			}
			r.mu.Unlock()
		})
	}
}

// IsOpen reports whether any dialog is open for the session.
func (r *DialogRegistry) IsOpen(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[sessionID] > 0
}
