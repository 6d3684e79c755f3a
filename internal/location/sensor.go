package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cropcare/internal/types"
)

// SensorEvent is one reading from a position sensor: either a fix or an
// error.
type SensorEvent struct {
	Coordinate types.Coordinate
	Err        error
}

// Sensor produces a continuous stream of readings. The returned channel is
// closed when the sensor has no more readings or ctx is cancelled; cancelling
// ctx releases the sensor.
type Sensor interface {
	Watch(ctx context.Context) (<-chan SensorEvent, error)
}

// ChannelSensor forwards events from a caller-owned channel. Useful for
// tests and for embedding a push-based source.
type ChannelSensor struct {
	Events <-chan SensorEvent
}

// Watch relays events until the source closes or ctx ends.
func (s ChannelSensor) Watch(ctx context.Context) (<-chan SensorEvent, error) {
	out := make(chan SensorEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.Events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ReaderSensor parses "lat,lon[,acc]" lines from a reader, one fix per
// line. Blank lines and lines starting with # are skipped.
type ReaderSensor struct {
	R io.Reader
}

// Watch starts reading. A malformed line yields an error event and reading
// continues; EOF closes the stream.
func (s ReaderSensor) Watch(ctx context.Context) (<-chan SensorEvent, error) {
	if s.R == nil {
		return nil, fmt.Errorf("reader sensor has no input")
	}
	out := make(chan SensorEvent)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.R)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			coord, err := ParseFix(line)
			select {
			case out <- SensorEvent{Coordinate: coord, Err: err}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- SensorEvent{Err: fmt.Errorf("reading fixes: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// ParseFix parses "lat,lon" or "lat,lon,acc".
func ParseFix(s string) (types.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return types.Coordinate{}, fmt.Errorf("fix %q: want lat,lon[,acc]", s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Coordinate{}, fmt.Errorf("fix %q: %w", s, err)
		}
		vals[i] = v
	}
	acc := 0.0
	if len(vals) == 3 {
		acc = vals[2]
	}
	c := types.NewCoordinate(vals[0], vals[1], acc)
	if err := c.Validate(); err != nil {
		return types.Coordinate{}, err
	}
	return c, nil
}
