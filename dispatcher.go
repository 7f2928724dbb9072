package mqttbus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Dispatcher delivers published messages to the subscribers whose filters
// match the topic. It is safe for concurrent use.
//
// Each matching subscriber is invoked at most once per message, however many
// of its filters match. Handler failures are reported through the logger,
// metrics and error handler and never reach the publisher.
type Dispatcher[T any] struct {
	registry *Registry[T]
	logger   Logger
	metrics  *DispatchMetrics
	onError  func(*DeliveryError)
	closed   atomic.Bool
}

// NewDispatcher creates a dispatcher with an empty registry.
func NewDispatcher[T any](opts ...DispatcherOption) *Dispatcher[T] {
	config := defaultDispatcherConfig()
	for _, opt := range opts {
		opt(config)
	}

	var regOpts []RegistryOption
	if config.strictFilters {
		regOpts = append(regOpts, WithStrictRegistry())
	}

	return &Dispatcher[T]{
		registry: NewRegistry[T](regOpts...),
		logger:   config.logger,
		metrics:  NewDispatchMetrics(config.metrics),
		onError:  config.onError,
	}
}

// Registry returns the underlying registry.
func (d *Dispatcher[T]) Registry() *Registry[T] {
	return d.registry
}

// Subscribe registers filters for the subscriber.
func (d *Dispatcher[T]) Subscribe(sub *Subscriber[T], filters ...string) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}

	if err := d.registry.Subscribe(sub, filters...); err != nil {
		return err
	}

	// Close may have cleared the registry between the check and the insert.
	if d.closed.Load() {
		d.registry.UnsubscribeAll(sub)
		return ErrDispatcherClosed
	}

	d.metrics.Subscribers(d.registry.Len())
	d.logger.Debug("subscribed", LogFields{
		LogFieldSubscriberID: sub.ID(),
		LogFieldFilter:       filters,
	})

	return nil
}

// Unsubscribe removes filters from the subscriber. Without filters it
// removes only "#". See Registry.Unsubscribe.
func (d *Dispatcher[T]) Unsubscribe(sub *Subscriber[T], filters ...string) {
	d.registry.Unsubscribe(sub, filters...)
	d.metrics.Subscribers(d.registry.Len())
}

// UnsubscribeAll removes the subscriber entirely.
func (d *Dispatcher[T]) UnsubscribeAll(sub *Subscriber[T]) {
	if d.registry.UnsubscribeAll(sub) {
		d.metrics.Subscribers(d.registry.Len())
	}
}

// Publish delivers msg to every subscriber with a filter matching topic and
// returns the number of subscribers invoked, failed ones included.
//
// Subscribers added or removed while Publish runs may or may not see the
// message.
func (d *Dispatcher[T]) Publish(topic string, msg T) int {
	if d.closed.Load() {
		return 0
	}

	start := time.Now()
	path := ParseTopicPath(topic)

	delivered := 0
	for _, e := range d.registry.snapshot() {
		f := e.filters.firstMatch(path)
		if f == nil {
			continue
		}

		delivered++
		if derr := d.deliver(e.sub, f, topic, msg); derr != nil {
			d.report(derr)
		}
	}

	d.metrics.MessagePublished(delivered, time.Since(start))

	return delivered
}

// deliver invokes the handler, converting a returned error or a panic into
// a DeliveryError.
func (d *Dispatcher[T]) deliver(sub *Subscriber[T], f *TopicFilter, topic string, msg T) (derr *DeliveryError) {
	defer func() {
		if r := recover(); r != nil {
			derr = &DeliveryError{
				SubscriberID: sub.ID(),
				Topic:        topic,
				Filter:       f.String(),
				Panic:        r,
			}
		}
	}()

	if sub.handler == nil {
		return nil
	}

	if err := sub.handler(topic, msg); err != nil {
		return &DeliveryError{
			SubscriberID: sub.ID(),
			Topic:        topic,
			Filter:       f.String(),
			Err:          err,
		}
	}

	return nil
}

func (d *Dispatcher[T]) report(derr *DeliveryError) {
	d.metrics.DeliveryFailed(derr.Panic != nil)

	fields := LogFields{
		LogFieldSubscriberID: derr.SubscriberID,
		LogFieldTopic:        derr.Topic,
		LogFieldFilter:       derr.Filter,
	}
	if derr.Panic != nil {
		fields[LogFieldPanic] = fmt.Sprint(derr.Panic)
	} else {
		fields[LogFieldError] = derr.Err.Error()
	}
	d.logger.Warn("subscriber failed to handle message", fields)

	if d.onError != nil {
		d.safeErrorHandler(derr)
	}
}

// safeErrorHandler keeps a panicking hook from aborting the publish loop.
func (d *Dispatcher[T]) safeErrorHandler(derr *DeliveryError) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("delivery error handler panicked", LogFields{
				LogFieldSubscriberID: derr.SubscriberID,
				LogFieldPanic:        fmt.Sprint(r),
			})
		}
	}()
	d.onError(derr)
}

// Close removes all subscribers. Afterwards Subscribe fails with
// ErrDispatcherClosed and Publish delivers nothing. Close is idempotent.
func (d *Dispatcher[T]) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.registry.Clear()
	d.metrics.Subscribers(0)
}
