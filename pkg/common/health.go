package common

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

// CheckStatus represents the status of a single dependency check
type CheckStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

var startTime = time.Now()

// LivenessProbe always answers 200 while the process is serving.
func LivenessProbe(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "alive",
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
		})
	}
}

// ReadinessProbe runs every check concurrently and answers 503 when any fails.
func ReadinessProbe(serviceName, version string, checks map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		type checkResult struct {
			name     string
			err      error
			duration time.Duration
		}

		resultChan := make(chan checkResult, len(checks))
		var wg sync.WaitGroup
		for name, checkFunc := range checks {
			wg.Add(1)
			go func(n string, cf func() error) {
				defer wg.Done()
				start := time.Now()
				err := cf()
				resultChan <- checkResult{name: n, err: err, duration: time.Since(start)}
			}(name, checkFunc)
		}
		wg.Wait()
		close(resultChan)

		status := "ready"
		statusCode := http.StatusOK
		checkResults := make(map[string]CheckStatus, len(checks))
		for result := range resultChan {
			if result.err != nil {
				checkResults[result.name] = CheckStatus{
					Status:   "unhealthy",
					Message:  result.err.Error(),
					Duration: result.duration.String(),
				}
				status = "not ready"
				statusCode = http.StatusServiceUnavailable
				continue
			}
			checkResults[result.name] = CheckStatus{Status: "healthy", Duration: result.duration.String()}
		}

		c.JSON(statusCode, HealthResponse{
			Status:    status,
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Checks:    checkResults,
		})
	}
}
