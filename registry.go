package mqttbus

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Handler receives a message published to a topic matching one of the
// subscriber's filters. A returned error is reported but never retried.
type Handler[T any] func(topic string, msg T) error

// Subscriber is a registered message handler. Subscribers are compared by
// identity: two subscribers wrapping the same function are distinct.
type Subscriber[T any] struct {
	id      string
	handler Handler[T]
}

// NewSubscriber creates a subscriber for the handler.
func NewSubscriber[T any](handler Handler[T]) *Subscriber[T] {
	return &Subscriber[T]{
		id:      uuid.NewString(),
		handler: handler,
	}
}

// ID returns an identifier for logs and diagnostics.
func (s *Subscriber[T]) ID() string {
	return s.id
}

// filterSet is never mutated after it is stored in the registry;
// updates build a new set and swap it in.
type filterSet []*TopicFilter

func (fs filterSet) contains(pattern string) bool {
	for _, f := range fs {
		if f.pattern == pattern {
			return true
		}
	}
	return false
}

// firstMatch returns the first filter matching path, or nil.
func (fs filterSet) firstMatch(path TopicPath) *TopicFilter {
	for _, f := range fs {
		if f.Match(path) {
			return f
		}
	}
	return nil
}

func (fs filterSet) patterns() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.pattern
	}
	return out
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	strict bool
}

// WithStrictRegistry makes the registry reject filters where "#" is not the
// last level.
func WithStrictRegistry() RegistryOption {
	return func(o *registryOptions) {
		o.strict = true
	}
}

// Registry tracks the filters of each subscriber.
// It is safe for concurrent use.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[*Subscriber[T]]filterSet
	order   []*Subscriber[T]
	strict  bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any](opts ...RegistryOption) *Registry[T] {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &Registry[T]{
		entries: make(map[*Subscriber[T]]filterSet),
		strict:  o.strict,
	}
}

func (r *Registry[T]) parse(filter string) (*TopicFilter, error) {
	if r.strict {
		if err := ValidateTopicFilter(filter); err != nil {
			return nil, err
		}
	}
	return ParseTopicFilter(filter)
}

// Subscribe adds filters to the subscriber. All filters are parsed before
// anything is registered, so an invalid filter leaves the registry unchanged.
// Filters the subscriber already holds are ignored.
func (r *Registry[T]) Subscribe(sub *Subscriber[T], filters ...string) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	parsed := make([]*TopicFilter, 0, len(filters))
	for _, filter := range filters {
		f, err := r.parse(filter)
		if err != nil {
			return err
		}
		parsed = append(parsed, f)
	}

	if len(parsed) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.entries[sub]

	next := make(filterSet, len(current), len(current)+len(parsed))
	copy(next, current)
	for _, f := range parsed {
		if !next.contains(f.pattern) {
			next = append(next, f)
		}
	}

	r.entries[sub] = next
	if !exists {
		r.order = append(r.order, sub)
	}

	return nil
}

// Unsubscribe removes filters from the subscriber. When the subscriber has
// no filters left it is removed entirely.
//
// Called without filters it removes only the "#" filter, it does not drop
// every subscription of the subscriber. Use UnsubscribeAll for that.
func (r *Registry[T]) Unsubscribe(sub *Subscriber[T], filters ...string) {
	if sub == nil {
		return
	}
	if len(filters) == 0 {
		filters = []string{multiLevelWildcard}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[sub]
	if !ok {
		return
	}

	remove := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		remove[f] = struct{}{}
	}

	next := make(filterSet, 0, len(current))
	for _, f := range current {
		if _, drop := remove[f.pattern]; !drop {
			next = append(next, f)
		}
	}

	if len(next) == len(current) {
		return
	}

	if len(next) == 0 {
		r.removeLocked(sub)
		return
	}

	r.entries[sub] = next
}

// UnsubscribeAll removes the subscriber and all of its filters.
// It reports whether the subscriber was registered.
func (r *Registry[T]) UnsubscribeAll(sub *Subscriber[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[sub]; !ok {
		return false
	}
	r.removeLocked(sub)
	return true
}

func (r *Registry[T]) removeLocked(sub *Subscriber[T]) {
	delete(r.entries, sub)
	for i, s := range r.order {
		if s == sub {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Filters returns the filter patterns of the subscriber in subscription order.
func (r *Registry[T]) Filters(sub *Subscriber[T]) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, ok := r.entries[sub]
	if !ok {
		return nil
	}
	return fs.patterns()
}

// Len returns the number of registered subscribers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// TopicFilters returns the distinct filter patterns across all subscribers,
// sorted.
func (r *Registry[T]) TopicFilters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, fs := range r.entries {
		for _, f := range fs {
			seen[f.pattern] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)

	return out
}

// Match returns the subscribers with at least one filter matching topic,
// in registration order.
func (r *Registry[T]) Match(topic string) []*Subscriber[T] {
	path := ParseTopicPath(topic)

	var out []*Subscriber[T]
	for _, e := range r.snapshot() {
		if e.filters.firstMatch(path) != nil {
			out = append(out, e.sub)
		}
	}
	return out
}

// Clear removes every subscriber.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[*Subscriber[T]]filterSet)
	r.order = nil
}

type registryEntry[T any] struct {
	sub     *Subscriber[T]
	filters filterSet
}

// snapshot copies the current entries. Filter sets are shared since they are
// immutable.
func (r *Registry[T]) snapshot() []registryEntry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]registryEntry[T], len(r.order))
	for i, sub := range r.order {
		out[i] = registryEntry[T]{sub: sub, filters: r.entries[sub]}
	}
	return out
}
