package monitoring

import (
	"context"
	"sync"
	"time"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthStatus
	RegisterCheck(name string, checker ComponentChecker)
}

type ComponentChecker interface {
	Check(ctx context.Context) error
	Timeout() time.Duration
}

type HealthStatus struct {
	Status     string                      `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     time.Duration               `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status      string        `json:"status"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

type healthChecker struct {
	checkers  map[string]ComponentChecker
	startTime time.Time
	version   string
	mutex     sync.RWMutex
}

func NewHealthChecker(version string) HealthChecker {
	return &healthChecker{
		checkers:  make(map[string]ComponentChecker),
		startTime: time.Now(),
		version:   version,
	}
}

func (h *healthChecker) RegisterCheck(name string, checker ComponentChecker) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkers[name] = checker
}

func (h *healthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	overallStatus := "healthy"
	components := make(map[string]*ComponentHealth, len(h.checkers))
	unhealthy := 0

	for name, checker := range h.checkers {
		component := h.checkComponent(ctx, checker)
		components[name] = component

		if component.Status == "unhealthy" {
			unhealthy++
			overallStatus = "degraded"
		}
	}

	if len(h.checkers) > 0 && unhealthy == len(h.checkers) {
		overallStatus = "unhealthy"
	}

	return &HealthStatus{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime),
		Version:    h.version,
		Components: components,
	}
}

func (h *healthChecker) checkComponent(ctx context.Context, checker ComponentChecker) *ComponentHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, checker.Timeout())
	defer cancel()

	err := checker.Check(checkCtx)
	duration := time.Since(start)

	component := &ComponentHealth{
		LastChecked: time.Now(),
		Duration:    duration,
	}

	if err != nil {
		component.Status = "unhealthy"
		component.Error = err.Error()
	} else {
		component.Status = "healthy"
	}

	return component
}

// CheckFunc adapts a plain function into a ComponentChecker.
type CheckFunc struct {
	Fn         func(ctx context.Context) error
	MaxLatency time.Duration
}

func NewCheckFunc(fn func(ctx context.Context) error, timeout time.Duration) ComponentChecker {
	return &CheckFunc{Fn: fn, MaxLatency: timeout}
}

func (c *CheckFunc) Check(ctx context.Context) error {
	return c.Fn(ctx)
}

func (c *CheckFunc) Timeout() time.Duration {
	if c.MaxLatency <= 0 {
		return 5 * time.Second
	}
	return c.MaxLatency
}
