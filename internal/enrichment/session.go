package enrichment

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"cropcare/internal/location"
	"cropcare/internal/types"
)

// Session tracks the Assessment for a moving coordinate. Each new coordinate
// cancels the fan-out keyed to the previous one and starts a fresh
// Assessment; late results from a superseded fan-out are never merged.
type Session struct {
	id       string
	agg      *Aggregator
	logger   *slog.Logger
	onUpdate func(SessionUpdate)

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	coord     *types.Coordinate
	detection *types.DetectionResult
	current   *types.Assessment
	done      chan struct{}
	settled   bool
	closed    bool
}

// SessionUpdate is a streamed partial or final Assessment for one
// generation.
type SessionUpdate struct {
	Generation uint64
	Provider   types.Provider
	Err        error
	// Final is set on the update emitted when every provider has settled.
	Final      bool
	Assessment *types.Assessment
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithUpdates registers a listener for partial and final results. It runs
// with the session lock held, so it must not call back into the Session.
func WithUpdates(fn func(SessionUpdate)) SessionOption {
	return func(s *Session) { s.onUpdate = fn }
}

// WithSessionLogger overrides the aggregator's logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an idle session.
func NewSession(agg *Aggregator, opts ...SessionOption) *Session {
	s := &Session{id: uuid.NewString(), agg: agg, logger: agg.logger}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// SetCoordinate supersedes any fan-out in flight and starts a new one for c.
// It returns the new generation number. ctx bounds the fan-out; cancelling
// it has the same effect as Close for this generation.
func (s *Session) SetCoordinate(ctx context.Context, c types.Coordinate, src types.LocationSource) uint64 {
	s.mu.Lock()
	if s.closed {
		gen := s.gen
		s.mu.Unlock()
		return gen
	}
	prev := s.coord
	s.supersedeLocked()

	s.gen++
	gen := s.gen
	fanCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.coord = &c
	s.current = &types.Assessment{Detection: s.detection, Coordinate: &c, Source: src}
	s.done = make(chan struct{})
	s.settled = false
	detection := s.detection
	s.mu.Unlock()

	if prev != nil && CellFor(*prev) != CellFor(c) {
		if n := s.agg.Cache().InvalidateCell(*prev); n > 0 {
			s.logger.Debug("invalidated cached enrichment for previous coordinate", "entries", n, "coordinate", prev.String())
		}
	}
	s.logger.Debug("enrichment fan-out started", "generation", gen, "coordinate", c.String(), "source", string(src))

	go func() {
		final := s.agg.EnrichStream(fanCtx, Request{Coordinate: &c, Source: src, Detection: detection}, func(u Update) {
			s.apply(gen, u)
		})
		s.finish(gen, final)
		cancel()
	}()
	return gen
}

// SetDetection attaches a detection to the current and future Assessments.
// It does not trigger a new fan-out.
func (s *Session) SetDetection(d *types.DetectionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detection = d
	if s.current != nil {
		s.current = s.current.Clone()
		s.current.Detection = d
	}
}

// SetSource relabels the current Assessment's location source without
// refetching, used when the same point is reported by a different source.
func (s *Session) SetSource(src types.LocationSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current = s.current.Clone()
		s.current.Source = src
	}
}

// Coordinate returns the coordinate of the active generation.
func (s *Session) Coordinate() *types.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coord == nil {
		return nil
	}
	c := *s.coord
	return &c
}

// Snapshot returns the Assessment as merged so far for the active
// generation, or nil before the first coordinate.
func (s *Session) Snapshot() *types.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Wait blocks until the active generation has settled and returns its
// Assessment. If the generation is superseded while waiting, Wait follows
// the newer one. It returns nil when no coordinate has been set.
func (s *Session) Wait(ctx context.Context) (*types.Assessment, error) {
	for {
		s.mu.Lock()
		done, gen := s.done, s.gen
		s.mu.Unlock()
		if done == nil {
			return nil, nil
		}
		select {
		case <-done:
			s.mu.Lock()
			if s.gen == gen || s.closed {
				a := s.current.Clone()
				s.mu.Unlock()
				return a, nil
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close cancels the fan-out in flight. Further SetCoordinate calls are
// ignored. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.supersedeLocked()
	s.closed = true
}

// Follow keeps the session on the provider's coordinate: every change to a
// new point starts a fan-out, and a change of source at the same point only
// relabels. Disabled or failed providers contribute their default
// coordinate. The returned func stops following.
func (s *Session) Follow(ctx context.Context, p *location.Provider) func() {
	follow := func() {
		c, src := p.Coordinate()
		cur := s.Coordinate()
		if cur != nil && cur.SamePoint(c) {
			s.SetSource(src)
			return
		}
		s.SetCoordinate(ctx, c, src)
	}
	unsubscribe := p.OnChange(func(location.Fix) { follow() })
	follow()
	return unsubscribe
}

// supersedeLocked cancels the active generation and releases its waiters.
func (s *Session) supersedeLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil && !s.settled {
		s.settled = true
		close(s.done)
	}
}

func (s *Session) apply(gen uint64, u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		s.logger.Debug("discarding superseded enrichment result", "generation", gen, "provider", string(u.Provider))
		return
	}
	a := u.Assessment
	a.Detection = s.detection
	a.Source = s.current.Source
	s.current = a
	if s.onUpdate != nil {
		s.onUpdate(SessionUpdate{Generation: gen, Provider: u.Provider, Err: u.Err, Assessment: a.Clone()})
	}
}

func (s *Session) finish(gen uint64, final *types.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed || s.settled {
		return
	}
	final.Detection = s.detection
	final.Source = s.current.Source
	s.current = final
	s.settled = true
	close(s.done)
	s.logger.Debug("enrichment fan-out settled", "generation", gen)
	if s.onUpdate != nil {
		s.onUpdate(SessionUpdate{Generation: gen, Final: true, Assessment: final.Clone()})
	}
}
