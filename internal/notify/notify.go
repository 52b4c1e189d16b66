// Package notify carries user-facing notifications from the review workflow to
// whatever surface displays them.
package notify

import (
	"sync"

	"github.com/joescharf/rq/internal/models"
)

// Type classifies a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is one message for the user.
type Notification struct {
	Message string
	Type    Type
}

// Notifier dispatches notifications. One call per message.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// FromInfo converts API error info items into notifications, one per item.
// Items without a type are treated as errors.
func FromInfo(info []models.ErrorInfo) []Notification {
	out := make([]Notification, 0, len(info))
	for _, item := range info {
		t := Type(item.Type)
		if t == "" {
			t = TypeError
		}
		out = append(out, Notification{Message: item.Message, Type: t})
	}
	return out
}

// Bus fans a notification out to every subscriber in registration order.
type Bus struct {
	mu   sync.Mutex
	subs []Notifier
}

// NewBus creates a bus with the given initial subscribers.
func NewBus(subs ...Notifier) *Bus {
	return &Bus{subs: subs}
}

// Subscribe registers another notifier.
func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, n)
}

// Notify dispatches n to all subscribers.
func (b *Bus) Notify(n Notification) {
	b.mu.Lock()
	subs := make([]Notifier, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.Notify(n)
	}
}

// Recorder keeps every notification it receives. Useful in tests and for
// replaying messages after an interactive form closes.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// OfType returns the recorded notifications with the given type.
func (r *Recorder) OfType(t Type) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
