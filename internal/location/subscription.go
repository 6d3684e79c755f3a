package location

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscription is a scoped continuous sensor watch. Whoever starts it owns
// it and must call Stop; Stop is safe to call more than once and from any
// goroutine. Cancelling the parent context passed to Start also releases it.
type Subscription struct {
	id      string
	sensor  Sensor
	handle  func(SensorEvent)
	onClose func(*Subscription)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func newSubscription(sensor Sensor, handle func(SensorEvent), onClose func(*Subscription)) *Subscription {
	return &Subscription{
		id:      uuid.NewString(),
		sensor:  sensor,
		handle:  handle,
		onClose: onClose,
		done:    make(chan struct{}),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Start begins watching the sensor. The sensor is released when Stop is
// called, when ctx ends, or when the sensor closes its stream. A Watch error
// is delivered to the handler as an error event and the subscription ends.
func (s *Subscription) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	events, err := s.sensor.Watch(ctx)
	if err != nil {
		s.handle(SensorEvent{Err: err})
		s.finish()
		return
	}

	go func() {
		defer s.finish()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				// A reading that raced with Stop is dropped.
				if ctx.Err() != nil {
					return
				}
				s.handle(ev)
			}
		}
	}()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	cancel := s.cancel
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.onClose != nil {
		s.onClose(s)
	}
}

// Stop releases the sensor and waits for the watch goroutine to exit.
func (s *Subscription) Stop() {
	s.mu.Lock()
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		s.finish()
		return
	}
	if cancel != nil {
		cancel()
	}
	<-s.done
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} { return s.done }
