// Package router routes messages from one dispatcher subscription to
// handlers selected by topic filter and message attributes.
package router

import (
	"errors"
	"regexp"
	"sort"
	"sync"

	"github.com/vitalvas/mqttbus"
)

// Handler processes an MQTT message.
type Handler func(msg *mqttbus.Message) error

// Condition defines filtering criteria for message routing.
type Condition struct {
	topicFilter   *mqttbus.TopicFilter
	qos           *byte
	retain        *bool
	clientIDRegex *regexp.Regexp
	payloadRegex  *regexp.Regexp
	err           error
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithTopic sets the topic filter for message matching.
// Supports MQTT wildcards: + (single level) and # (multi level).
func WithTopic(filter string) ConditionOption {
	return func(c *Condition) {
		c.topicFilter, c.err = mqttbus.ParseTopicFilter(filter)
	}
}

// WithQoS filters messages by QoS level.
func WithQoS(qos byte) ConditionOption {
	return func(c *Condition) {
		c.qos = &qos
	}
}

// WithRetain filters messages by the retain flag.
func WithRetain(retain bool) ConditionOption {
	return func(c *Condition) {
		c.retain = &retain
	}
}

// WithClientID filters messages by client ID regexp pattern.
func WithClientID(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.clientIDRegex = pattern
	}
}

// WithPayload filters messages by payload regexp pattern.
func WithPayload(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.payloadRegex = pattern
	}
}

// matches checks if a condition matches the message.
func (c *Condition) matches(msg *mqttbus.Message, path mqttbus.TopicPath) bool {
	if c.topicFilter != nil && !c.topicFilter.Match(path) {
		return false
	}
	if c.qos != nil && *c.qos != msg.QoS {
		return false
	}
	if c.retain != nil && *c.retain != msg.Retain {
		return false
	}
	if c.clientIDRegex != nil && !c.clientIDRegex.MatchString(msg.ClientID) {
		return false
	}
	if c.payloadRegex != nil && !c.payloadRegex.Match(msg.Payload) {
		return false
	}
	return true
}

type registration struct {
	handler   Handler
	condition Condition
}

// Router dispatches messages to handlers based on conditions.
type Router struct {
	mu       sync.RWMutex
	handlers []registration
}

// New creates a new Router.
func New() *Router {
	return &Router{
		handlers: make([]registration, 0),
	}
}

// Handle registers a handler with optional conditions.
// An invalid topic filter is rejected and nothing is registered.
//
// Examples:
//
//	r.Handle(handler, WithTopic("sensors/#"))
//	r.Handle(handler, WithTopic("sensors/#"), WithQoS(1))
//	r.Handle(handler, WithTopic("sensors/#"), WithClientID(regexp.MustCompile(`^sensor-`)))
func (r *Router) Handle(handler Handler, opts ...ConditionOption) error {
	var cond Condition
	for _, opt := range opts {
		opt(&cond)
	}
	if cond.err != nil {
		return cond.err
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, registration{
		handler:   handler,
		condition: cond,
	})
	r.mu.Unlock()

	return nil
}

// Route calls every matching handler in registration order.
// Handler errors are joined; a failing handler does not stop the others.
func (r *Router) Route(msg *mqttbus.Message) error {
	if msg == nil {
		return nil
	}

	path := mqttbus.ParseTopicPath(msg.Topic)

	r.mu.RLock()
	var matched []Handler
	for _, reg := range r.handlers {
		if reg.condition.matches(msg, path) {
			matched = append(matched, reg.handler)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, handler := range matched {
		if err := handler(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filters returns all unique registered topic filters, sorted.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, reg := range r.handlers {
		if reg.condition.topicFilter != nil {
			seen[reg.condition.topicFilter.String()] = struct{}{}
		}
	}

	filters := make([]string, 0, len(seen))
	for filter := range seen {
		filters = append(filters, filter)
	}
	sort.Strings(filters)
	return filters
}

// subscriptionFilters returns the filters a dispatcher subscription needs.
// A handler without a topic condition needs every message.
func (r *Router) subscriptionFilters() []string {
	r.mu.RLock()
	for _, reg := range r.handlers {
		if reg.condition.topicFilter == nil {
			r.mu.RUnlock()
			return []string{"#"}
		}
	}
	r.mu.RUnlock()

	return r.Filters()
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all handlers.
func (r *Router) Clear() {
	r.mu.Lock()
	r.handlers = r.handlers[:0]
	r.mu.Unlock()
}

// MessageHandler returns a dispatcher handler that routes every message.
func (r *Router) MessageHandler() mqttbus.Handler[*mqttbus.Message] {
	return func(_ string, msg *mqttbus.Message) error {
		return r.Route(msg)
	}
}

// Attach subscribes the router to d with the filters of the handlers
// registered so far. Handlers added later are reached only through
// those filters.
func (r *Router) Attach(d *mqttbus.Dispatcher[*mqttbus.Message]) (*mqttbus.Subscriber[*mqttbus.Message], error) {
	sub := mqttbus.NewSubscriber(r.MessageHandler())
	if err := d.Subscribe(sub, r.subscriptionFilters()...); err != nil {
		return nil, err
	}
	return sub, nil
}
