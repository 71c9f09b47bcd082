package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/resilience"
)

// Dependency states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// DependencyStatus represents the health status of a single dependency
type DependencyStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DeepHealthStatus represents the complete health status of the service
type DeepHealthStatus struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version,omitempty"`
	Uptime       time.Duration               `json:"uptime_seconds"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Breakers     map[string]BreakerStatus    `json:"circuit_breakers,omitempty"`
	Gauges       map[string]int              `json:"gauges,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// BreakerStatus represents the status of a circuit breaker
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Allows bool   `json:"allows_requests"`
}

type dependency struct {
	ping     PingFunc
	critical bool
}

// DeepChecker checks the gateway's dependencies: stores, the upstream ride
// API and its breaker. Results are cached for CacheTTL.
type DeepChecker struct {
	mu           sync.RWMutex
	dependencies map[string]dependency
	breakers     map[string]*resilience.CircuitBreaker
	gauges       map[string]func() int
	httpClient   *http.Client
	version      string
	startTime    time.Time
	timeout      time.Duration
	cacheTTL     time.Duration
	lastResult   *DeepHealthStatus
	lastChecked  time.Time
	now          func() time.Time
}

// DeepCheckerConfig holds configuration for the deep checker
type DeepCheckerConfig struct {
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultDeepCheckerConfig returns sensible defaults
func DefaultDeepCheckerConfig() DeepCheckerConfig {
	return DeepCheckerConfig{
		Version:  "unknown",
		Timeout:  5 * time.Second,
		CacheTTL: 10 * time.Second,
	}
}

// NewDeepChecker creates a new deep health checker
func NewDeepChecker(config DeepCheckerConfig) *DeepChecker {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &DeepChecker{
		dependencies: make(map[string]dependency),
		breakers:     make(map[string]*resilience.CircuitBreaker),
		gauges:       make(map[string]func() int),
		httpClient:   &http.Client{Timeout: config.Timeout},
		version:      config.Version,
		startTime:    time.Now(),
		timeout:      config.Timeout,
		cacheTTL:     config.CacheTTL,
		now:          time.Now,
	}
}

// AddDependency registers a ping. A failing critical dependency makes the
// service unready; other failures only degrade it.
func (d *DeepChecker) AddDependency(name string, critical bool, ping PingFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dependencies[name] = dependency{ping: ping, critical: critical}
}

// AddEndpoint registers an HTTP endpoint. 5xx responses count as failures.
func (d *DeepChecker) AddEndpoint(name, url string, critical bool) {
	d.AddDependency(name, critical, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("request creation failed: %w", err)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status code: %d", resp.StatusCode)
		}
		return nil
	})
}

// AddCircuitBreaker adds a circuit breaker to monitor
func (d *DeepChecker) AddCircuitBreaker(name string, breaker *resilience.CircuitBreaker) {
	if breaker == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakers[name] = breaker
}

// AddGauge reports a number alongside the checks, such as open sessions.
func (d *DeepChecker) AddGauge(name string, read func() int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gauges[name] = read
}

// Check performs a deep health check on all dependencies
func (d *DeepChecker) Check(ctx context.Context) *DeepHealthStatus {
	d.mu.RLock()
	if d.lastResult != nil && d.now().Sub(d.lastChecked) < d.cacheTTL {
		result := d.lastResult
		d.mu.RUnlock()
		return result
	}
	dependencies := make(map[string]dependency, len(d.dependencies))
	for name, dep := range d.dependencies {
		dependencies[name] = dep
	}
	d.mu.RUnlock()

	status := &DeepHealthStatus{
		Status:       StatusHealthy,
		Version:      d.version,
		Uptime:       time.Since(d.startTime),
		Dependencies: make(map[string]DependencyStatus, len(dependencies)),
		Breakers:     make(map[string]BreakerStatus),
		Gauges:       make(map[string]int),
		CheckedAt:    d.now(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, dep := range dependencies {
		wg.Add(1)
		go func(name string, dep dependency) {
			defer wg.Done()
			depStatus := d.ping(ctx, name, dep)
			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[name] = depStatus
			switch {
			case depStatus.Status == StatusHealthy:
			case dep.critical:
				status.Status = StatusUnhealthy
			case status.Status == StatusHealthy:
				status.Status = StatusDegraded
			}
		}(name, dep)
	}
	wg.Wait()

	d.mu.RLock()
	for name, breaker := range d.breakers {
		allows := breaker.Allow()
		state := "closed"
		if !allows {
			state = "open"
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		status.Breakers[name] = BreakerStatus{Name: name, State: state, Allows: allows}
	}
	for name, read := range d.gauges {
		status.Gauges[name] = read()
	}
	d.mu.RUnlock()

	d.mu.Lock()
	d.lastResult = status
	d.lastChecked = d.now()
	d.mu.Unlock()

	return status
}

func (d *DeepChecker) ping(ctx context.Context, name string, dep dependency) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Name:      name,
		Critical:  dep.critical,
		CheckedAt: d.now(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := dep.ping(checkCtx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	} else {
		status.Status = StatusHealthy
	}
	status.Latency = time.Since(start)
	return status
}

// GinHandler serves the deep check. Degraded still answers 200.
func (d *DeepChecker) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())

		httpStatus := http.StatusOK
		if status.Status == StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, status)
	}
}

// IsReady returns true if no critical dependency is failing.
func (d *DeepChecker) IsReady(ctx context.Context) bool {
	return d.Check(ctx).Status != StatusUnhealthy
}
