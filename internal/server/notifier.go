package server

import "sync"

// notifier broadcasts the names of changed templates to subscribed event
// streams.
type notifier struct {
	mu        sync.RWMutex
	listeners map[chan string]struct{}
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[chan string]struct{})}
}

// subscribe returns a channel receiving changed names. The caller must
// unsubscribe when done.
func (n *notifier) subscribe() chan string {
	ch := make(chan string, 16)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan string) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// broadcast sends name to every listener. A listener whose buffer is full
// misses the name.
func (n *notifier) broadcast(name string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- name:
		default:
		}
	}
}

func (n *notifier) len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
