package proxy

import (
	"fmt"
	"sync"

	"mcpgate/pkg/logging"
)

// Family names a capability list that can change.
type Family string

const (
	FamilyTools     Family = "tools"
	FamilyPrompts   Family = "prompts"
	FamilyResources Family = "resources"
)

// ListChange is delivered to the list change listener. Structural changes
// always report every family.
type ListChange struct {
	Families []Family
}

func allFamilies() ListChange {
	return ListChange{Families: []Family{FamilyTools, FamilyPrompts, FamilyResources}}
}

// notifier delivers list changes from its own goroutine, so the listener
// runs only after the mutating call has returned. Bursts of changes that
// arrive before the listener runs collapse into one delivery. The goroutine
// starts with the first scheduled change and exits on stop.
type notifier struct {
	pending chan struct{}
	done    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	listener  func(ListChange)
	startOnce sync.Once
	stopOnce  sync.Once
}

func newNotifier() *notifier {
	return &notifier{
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (n *notifier) setListener(fn func(ListChange)) {
	n.mu.Lock()
	n.listener = fn
	n.mu.Unlock()
}

// schedule queues a delivery. It never blocks.
func (n *notifier) schedule() {
	n.startOnce.Do(func() { go n.run() })
	select {
	case n.pending <- struct{}{}:
	default:
		// a delivery is already pending
	}
}

func (n *notifier) run() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case <-n.pending:
			n.deliver()
		}
	}
}

func (n *notifier) deliver() {
	n.mu.Lock()
	fn := n.listener
	n.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Proxy", fmt.Errorf("%v", r), "List change listener panicked")
		}
	}()
	fn(allFamilies())
}

// stop detaches the listener and waits for the goroutine to exit.
func (n *notifier) stop() {
	n.stopOnce.Do(func() {
		n.setListener(nil)
		close(n.done)
		// never started: nothing will close stopped
		n.startOnce.Do(func() { close(n.stopped) })
	})
	<-n.stopped
}
