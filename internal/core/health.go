package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the whole probe run. Probes still running at the
// deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency the API cannot serve without (today only
// the postgres history store). Enrichment providers are deliberately not
// probed: their failures degrade responses rather than break them.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under healthCheckTimeout and
// answers 200 when all pass, 503 otherwise. A panicking probe counts as
// unhealthy. GET /health is public.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Version: s.version()}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// results[i] belongs to probe i; a nil entry after the deadline means the
	// probe never reported.
	var (
		mu      sync.Mutex
		results = make([]*componentStatus, len(s.HealthProbes))
		wg      sync.WaitGroup
	)
	for i, probe := range s.HealthProbes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := runProbe(ctx, probe)
			mu.Lock()
			results[i] = &status
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for i, probe := range s.HealthProbes {
		status := componentStatus{Status: "unhealthy", Message: "health check timed out"}
		if results[i] != nil {
			status = *results[i]
		}
		if status.Status != "healthy" {
			resp.Status = "unhealthy"
			s.Logger.Warn("health probe failed",
				slog.String("component", probe.Name()),
				slog.String("reason", status.Message),
			)
		}
		resp.Components[probe.Name()] = status
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	JSON(w, r, code, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (status componentStatus) {
	defer func() {
		if rvr := recover(); rvr != nil {
			status = componentStatus{Status: "unhealthy", Message: fmt.Sprintf("probe panicked: %v", rvr)}
		}
	}()
	if err := p.Check(ctx); err != nil {
		return componentStatus{Status: "unhealthy", Message: err.Error()}
	}
	return componentStatus{Status: "healthy"}
}

func (s *Server) version() string {
	if s.Config == nil {
		return ""
	}
	return s.Config.Build.Version
}
