package service

import (
	"sync"

	"go.uber.org/zap"
)

// Listener is told that the schedule set changed. It is called synchronously after the
// change is durable and must not mutate the store from within the callback.
type Listener interface {
	ScheduleChanged()
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func()

// ScheduleChanged calls f.
func (f ListenerFunc) ScheduleChanged() { f() }

// ListenerID identifies a registration for RemoveListener.
type ListenerID uint64

type registration struct {
	id       ListenerID
	listener Listener
}

// ChangeNotifier fans a change signal out to registered listeners in registration order.
type ChangeNotifier struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners []registration
	logger    *zap.Logger
}

// NewChangeNotifier creates a notifier without listeners.
func NewChangeNotifier(logger *zap.Logger) *ChangeNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeNotifier{logger: logger}
}

// AddListener registers l and returns the handle needed to remove it.
func (n *ChangeNotifier) AddListener(l Listener) ListenerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.listeners = append(n.listeners, registration{id: n.nextID, listener: l})
	return n.nextID
}

// RemoveListener unregisters id and reports whether it was registered.
func (n *ChangeNotifier) RemoveListener(id ListenerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, reg := range n.listeners {
		if reg.id == id {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (n *ChangeNotifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// NotifyChanged invokes every listener once. A panicking listener is logged and skipped.
func (n *ChangeNotifier) NotifyChanged() {
	if n == nil {
		return
	}
	n.mu.RLock()
	targets := make([]registration, len(n.listeners))
	copy(targets, n.listeners)
	n.mu.RUnlock()

	for _, reg := range targets {
		n.dispatch(reg)
	}
}

func (n *ChangeNotifier) dispatch(reg registration) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("schedule listener panicked", zap.Uint64("listener_id", uint64(reg.id)), zap.Any("panic", r))
		}
	}()
	reg.listener.ScheduleChanged()
}
