// Package bus implements the Message Bus (C3): per-agent bounded
// priority mailboxes, durable append-before-ack publish, a dead-letter
// log for mailboxes that overflow, and a live fan-out subscription feed
// for observers.
//
// Built on registry.BaseRegistry[T]'s generic-store idiom for the
// mailbox table, with a "single writer per publisher, single reader
// per agent" ordering discipline.
package bus

import (
	"container/heap"
	"sync"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

const component = "bus"

// DefaultMailboxCapacity is the default bound on a single agent's
// pending message count.
const DefaultMailboxCapacity = 2000

// DeadLetter records a message that could not be delivered.
type DeadLetter struct {
	Message model.Message
	Reason  string
	At      time.Time
}

// Bus is the Message Bus (C3).
type Bus struct {
	mu          sync.Mutex
	capacity    int
	mailboxes   map[string]*priorityQueue
	subscribers map[string][]chan model.Message // agentID -> live fan-out subscribers
	deadLetters []DeadLetter
	persist     func(model.Message) error // append-before-ack hook; nil skips persistence (test mode)
	degraded    bool
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithCapacity overrides the default per-agent mailbox bound.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithPersist registers the durable-append hook Publish calls before it
// acknowledges a message. A nil persist function skips persistence;
// degraded mode is entered only through SetDegraded.
func WithPersist(fn func(model.Message) error) Option {
	return func(b *Bus) {
		b.persist = fn
	}
}

// New builds a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		capacity:    DefaultMailboxCapacity,
		mailboxes:   make(map[string]*priorityQueue),
		subscribers: make(map[string][]chan model.Message),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetDegraded forces degraded mode: Publish fails fast with
// bus_unavailable instead of buffering.
func (b *Bus) SetDegraded(degraded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.degraded = degraded
}

// Register ensures agentID has a mailbox, so it becomes a valid
// broadcast target even before anything has been delivered to or
// subscribed for it. A phase's participants must be registered before
// the phase starts publishing, or its first broadcast reaches nobody.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mailboxFor(agentID)
}

func (b *Bus) mailboxFor(agentID string) *priorityQueue {
	pq, ok := b.mailboxes[agentID]
	if !ok {
		pq = newPriorityQueue()
		b.mailboxes[agentID] = pq
	}
	return pq
}

// Publish appends msg to storage (if wired), then enqueues it into the
// recipient's mailbox (or every known mailbox, for a broadcast), and
// fans it out to any live subscribers. A full mailbox produces a dead
// letter and a message_dropped notice to "*" subscribers instead of
// blocking the publisher.
func (b *Bus) Publish(msg model.Message) error {
	msg.NormalizePriority()

	b.mu.Lock()
	degraded := b.degraded
	persist := b.persist
	b.mu.Unlock()

	if degraded {
		return corerr.New(component, "Publish", corerr.ErrBusUnavailable, "bus is in degraded mode", nil)
	}
	if persist != nil {
		if err := persist(msg); err != nil {
			return corerr.New(component, "Publish", corerr.ErrStorageUnavailable, "append message before ack", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	targets := []string{msg.ToAgent}
	if msg.IsBroadcast() {
		targets = targets[:0]
		for agentID := range b.mailboxes {
			targets = append(targets, agentID)
		}
		for agentID := range b.subscribers {
			if _, exists := b.mailboxes[agentID]; !exists {
				targets = append(targets, agentID)
			}
		}
	}

	for _, agentID := range targets {
		b.deliverLocked(agentID, msg)
	}
	return nil
}

func (b *Bus) deliverLocked(agentID string, msg model.Message) {
	pq := b.mailboxFor(agentID)
	if pq.Len() >= b.capacity {
		b.deadLetters = append(b.deadLetters, DeadLetter{Message: msg, Reason: "mailbox_full", At: time.Now()})
		b.broadcastDroppedLocked(msg, agentID)
		return
	}
	pq.Push(msg)

	for _, sub := range b.subscribers[agentID] {
		select {
		case sub <- msg:
		default:
			// a slow subscriber misses live delivery but the message
			// still sits in the mailbox for Receive to pick up.
		}
	}
}

func (b *Bus) broadcastDroppedLocked(msg model.Message, recipient string) {
	notice := model.Message{
		ID:        model.NewID(),
		RunID:     msg.RunID,
		Kind:      model.KindSystem,
		Content:   "message_dropped: mailbox full for " + recipient,
		Timestamp: time.Now(),
	}
	for _, sub := range b.subscribers["*"] {
		select {
		case sub <- notice:
		default:
		}
	}
}

// Receive pops the highest-priority pending message for agentID, oldest
// first within a priority tier (FIFO tie-break), or ok=false if the
// mailbox is empty.
func (b *Bus) Receive(agentID string) (model.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pq, ok := b.mailboxes[agentID]
	if !ok || pq.Len() == 0 {
		return model.Message{}, false
	}
	return pq.Pop(), true
}

// Drain returns every pending message for agentID without blocking, in
// delivery order (priority then FIFO).
func (b *Bus) Drain(agentID string) []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	pq, ok := b.mailboxes[agentID]
	if !ok {
		return nil
	}
	out := make([]model.Message, 0, pq.Len())
	for pq.Len() > 0 {
		out = append(out, pq.Pop())
	}
	return out
}

// Subscribe registers a live fan-out channel for agentID ("*" subscribes
// to dropped-message notices). The returned function unsubscribes.
func (b *Bus) Subscribe(agentID string, buffer int) (<-chan model.Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.Message, buffer)
	b.mu.Lock()
	b.subscribers[agentID] = append(b.subscribers[agentID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[agentID]
		for i, s := range subs {
			if s == ch {
				b.subscribers[agentID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}

// DeadLetters returns a snapshot of undelivered messages, most recent
// last.
func (b *Bus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// MailboxDepth reports how many messages are pending for agentID.
func (b *Bus) MailboxDepth(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	pq, ok := b.mailboxes[agentID]
	if !ok {
		return 0
	}
	return pq.Len()
}

// --- priority queue: max-priority-first, FIFO within a priority tier ---

type pqItem struct {
	msg   model.Message
	seq   int64
	index int
}

type pqHeap []*pqItem

func (h pqHeap) Len() int { return len(h) }
func (h pqHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}
func (h pqHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *pqHeap) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *pqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type priorityQueue struct {
	h    pqHeap
	next int64
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{}
	heap.Init(&pq.h)
	return pq
}

func (q *priorityQueue) Push(msg model.Message) {
	heap.Push(&q.h, &pqItem{msg: msg, seq: q.next})
	q.next++
}

func (q *priorityQueue) Pop() model.Message {
	item := heap.Pop(&q.h).(*pqItem)
	return item.msg
}

func (q *priorityQueue) Len() int { return q.h.Len() }
