package event

import (
	"reflect"
	"sync"
)

// Callback is a function that receives events.
type Callback func(Event)

// Listener holds a callback and its event filter mask.
type Listener struct {
	Callback Callback
	Mask     Code
}

// ListenerManager manages event listeners and dispatches events.
//
// Events are handed off to a single background dispatch goroutine that
// invokes matching listeners in registration order, one event at a time.
// This keeps the relative order of events seen by any given listener
// identical to the order Dispatch was called in, even though the caller of
// Dispatch never blocks waiting for listener callbacks to return.
type ListenerManager struct {
	mu        sync.RWMutex
	listeners []Listener

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []Event
}

// NewListenerManager creates a new listener manager.
func NewListenerManager() *ListenerManager {
	m := &ListenerManager{
		listeners: make([]Listener, 0),
	}
	m.queueCond = sync.NewCond(&m.queueMu)
	go m.dispatchLoop()
	return m
}

// dispatchLoop drains the event queue in FIFO order for the lifetime of the
// ListenerManager, invoking each matching listener synchronously before
// moving on to the next queued event.
func (m *ListenerManager) dispatchLoop() {
	for {
		m.queueMu.Lock()
		for len(m.queue) == 0 {
			m.queueCond.Wait()
		}
		e := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		m.DispatchSync(e)
	}
}

// AddListener registers a callback to receive events matching the given mask.
// If mask is 0, the callback receives all events.
func (m *ListenerManager) AddListener(callback Callback, mask Code) {
	if mask == 0 {
		mask = All
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, Listener{
		Callback: callback,
		Mask:     mask,
	})
}

// RemoveListener unregisters a callback.
// Note: This compares function pointers, so the same function reference must be used.
func (m *ListenerManager) RemoveListener(callback Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Find and remove the listener
	for i := 0; i < len(m.listeners); i++ {
		// Compare function pointers using a helper
		if isSameCallback(m.listeners[i].Callback, callback) {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// isSameCallback compares callbacks by their underlying code pointer.
// Go disallows direct function comparison, so this is the closest available
// check: it is true for the same function value, and also for two closures
// created from the same function literal or two method values of the same
// method, since those share one code pointer.
func isSameCallback(a, b Callback) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Dispatch enqueues an event for delivery to registered listeners and
// returns immediately. Listeners are invoked later, in registration order,
// by a single dispatch goroutine shared by all events — so two events
// queued by Dispatch in a given order are always delivered to listeners in
// that same order, never concurrently or out of sequence.
func (m *ListenerManager) Dispatch(event Event) {
	m.queueMu.Lock()
	m.queue = append(m.queue, event)
	m.queueMu.Unlock()
	m.queueCond.Signal()
}

// DispatchSync sends an event to all registered listeners synchronously.
// This is useful when you need to ensure all listeners have processed the event.
func (m *ListenerManager) DispatchSync(event Event) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	code := event.EventCode()
	for _, listener := range listeners {
		if listener.Mask&code != 0 {
			listener.Callback(event)
		}
	}
}

// Clear removes all listeners.
func (m *ListenerManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = m.listeners[:0]
}

// Count returns the number of registered listeners.
func (m *ListenerManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}
