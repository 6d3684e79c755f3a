// Package location resolves the coordinate that drives enrichment. A
// Provider follows a continuous sensor watch, accepts manual region picks,
// and falls back to a configured default coordinate so that risk context is
// always available, even when degraded.
package location

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cropcare/internal/types"
)

// State is the resolution state of a Provider.
type State string

const (
	StateDisabled  State = "disabled"
	StateResolving State = "resolving"
	StateResolved  State = "resolved"
	StateFailed    State = "failed"
)

// Fix is a point-in-time view of a Provider. Coordinate is nil only while
// Disabled or Resolving. In StateFailed it carries the default coordinate.
type Fix struct {
	State      State
	Coordinate *types.Coordinate
	Source     types.LocationSource
	Err        error
}

// ProviderConfig wires a Provider.
type ProviderConfig struct {
	Default types.Coordinate
	Regions *Regions
	Sensor  Sensor
	Logger  *slog.Logger
}

// Provider is the location state machine:
//
//	Disabled -> Resolving -> Resolved(Coordinate) | Failed
//
// Manual picks move directly into Resolved and hold until the sensor
// produces a new fix.
type Provider struct {
	def     types.Coordinate
	regions *Regions
	sensor  Sensor
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	current   *types.Coordinate
	source    types.LocationSource
	lastErr   error
	manual    bool
	sub       *Subscription
	listeners map[int]func(Fix)
	nextID    int
}

// NewProvider creates a Provider in StateDisabled.
func NewProvider(cfg ProviderConfig) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	regions := cfg.Regions
	if regions == nil {
		regions = DefaultRegions()
	}
	return &Provider{
		def:       cfg.Default,
		regions:   regions,
		sensor:    cfg.Sensor,
		logger:    logger,
		state:     StateDisabled,
		listeners: make(map[int]func(Fix)),
	}
}

// Regions returns the manual region table.
func (p *Provider) Regions() *Regions { return p.regions }

// Default returns the fallback coordinate.
func (p *Provider) Default() types.Coordinate { return p.def }

// Enable starts continuous resolution. Calling Enable while a watch is
// already running is a no-op. Without a sensor, or when the sensor cannot
// be opened, the provider moves to StateFailed carrying the default
// coordinate (unless a manual pick is active).
func (p *Provider) Enable(ctx context.Context) {
	p.mu.Lock()
	if p.sub != nil {
		p.mu.Unlock()
		return
	}
	if p.sensor == nil {
		p.failLocked(fmt.Errorf("no location sensor configured"))
		fix := p.fixLocked()
		p.mu.Unlock()
		p.notify(fix)
		return
	}

	var sub *Subscription
	sub = newSubscription(p.sensor, func(ev SensorEvent) { p.handleEvent(sub, ev) }, p.subscriptionClosed)
	p.sub = sub
	if !p.manual {
		p.state = StateResolving
		p.current = nil
		p.source = ""
		p.lastErr = nil
	}
	fix := p.fixLocked()
	p.mu.Unlock()

	p.logger.Debug("location watch started", "subscription_id", sub.ID())
	p.notify(fix)
	sub.Start(ctx)
}

// Disable cancels any in-flight resolution, releases the sensor, and clears
// the resolved coordinate.
func (p *Provider) Disable() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	wasDisabled := p.state == StateDisabled && sub == nil
	p.state = StateDisabled
	p.current = nil
	p.source = ""
	p.lastErr = nil
	p.manual = false
	fix := p.fixLocked()
	p.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	if !wasDisabled {
		p.notify(fix)
	}
}

// Done returns a channel closed once the running sensor watch has ended and
// its last reading has been handled. It is already closed when no watch is
// running.
func (p *Provider) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return p.sub.Done()
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// SelectRegion resolves a manual region by name.
func (p *Provider) SelectRegion(name string) error {
	coord, ok := p.regions.Lookup(name)
	if !ok {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundRegion,
			fmt.Sprintf("unknown region %q", name), nil,
			map[string]any{"regions": p.regions.Names()})
	}
	return p.SetManual(coord)
}

// SetManual moves directly to StateResolved with a manually chosen
// coordinate. The pick holds until the sensor produces a new fix.
func (p *Provider) SetManual(c types.Coordinate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.state = StateResolved
	p.current = &c
	p.source = types.SourceManual
	p.lastErr = nil
	p.manual = true
	fix := p.fixLocked()
	p.mu.Unlock()

	p.notify(fix)
	return nil
}

// Current returns the present state.
func (p *Provider) Current() Fix {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fixLocked()
}

// Coordinate returns the coordinate enrichment should use right now: the
// resolved one if any, else the default.
func (p *Provider) Coordinate() (types.Coordinate, types.LocationSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return *p.current, p.source
	}
	return p.def, types.SourceDefault
}

// OnChange registers fn to be called after every state change. Listeners run
// on the goroutine that caused the change, outside the provider lock. The
// returned func unregisters fn.
func (p *Provider) OnChange(fn func(Fix)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Resolve picks a coordinate for a one-shot request: explicit lat/lon win,
// then a named region, then the default. It does not touch provider state.
func (p *Provider) Resolve(lat, lon *float64, acc float64, region string) (types.Coordinate, types.LocationSource, error) {
	switch {
	case lat != nil && lon != nil:
		c := types.NewCoordinate(*lat, *lon, acc)
		if err := c.Validate(); err != nil {
			return types.Coordinate{}, "", err
		}
		return c, types.SourceSensor, nil
	case lat != nil || lon != nil:
		return types.Coordinate{}, "", types.NewAppError(types.ErrCodeValidationMissingField,
			"lat and lon must be provided together", nil)
	case region != "":
		c, ok := p.regions.Lookup(region)
		if !ok {
			return types.Coordinate{}, "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRegion,
				fmt.Sprintf("unknown region %q", region), nil,
				map[string]any{"regions": p.regions.Names()})
		}
		return c, types.SourceManual, nil
	default:
		return p.def, types.SourceDefault, nil
	}
}

func (p *Provider) handleEvent(sub *Subscription, ev SensorEvent) {
	p.mu.Lock()
	if p.sub != sub {
		// Reading from a released watch.
		p.mu.Unlock()
		return
	}
	if ev.Err != nil {
		if p.manual {
			p.mu.Unlock()
			p.logger.Warn("location sensor error ignored, manual region active", "error", ev.Err)
			return
		}
		p.failLocked(ev.Err)
	} else {
		c := ev.Coordinate
		p.state = StateResolved
		p.current = &c
		p.source = types.SourceSensor
		p.lastErr = nil
		p.manual = false
	}
	fix := p.fixLocked()
	p.mu.Unlock()

	if ev.Err != nil {
		p.logger.Warn("location resolution failed, using default coordinate",
			"error", ev.Err, "default", p.def.String())
	}
	p.notify(fix)
}

// subscriptionClosed runs when the watch ends on its own (stream closed or
// Watch failed). A provider that never got a fix falls back to the default.
func (p *Provider) subscriptionClosed(sub *Subscription) {
	p.mu.Lock()
	if p.sub != sub {
		p.mu.Unlock()
		return
	}
	p.sub = nil
	if p.state != StateResolving {
		p.mu.Unlock()
		return
	}
	p.failLocked(fmt.Errorf("location sensor stopped without a fix"))
	fix := p.fixLocked()
	p.mu.Unlock()

	p.logger.Warn("location sensor closed before resolving, using default coordinate")
	p.notify(fix)
}

func (p *Provider) failLocked(err error) {
	p.lastErr = err
	if p.manual {
		return
	}
	def := p.def
	p.state = StateFailed
	p.current = &def
	p.source = types.SourceDefault
}

func (p *Provider) fixLocked() Fix {
	f := Fix{State: p.state, Source: p.source, Err: p.lastErr}
	if p.current != nil {
		c := *p.current
		f.Coordinate = &c
	}
	return f
}

func (p *Provider) notify(fix Fix) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Fix), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(fix)
	}
}
