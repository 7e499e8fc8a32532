package api

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// allMetrics returns the in-process metrics
func (s *Server) allMetrics(c *gin.Context) {
	s.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	c.JSON(http.StatusOK, s.metrics.GetAllMetrics())
}

// health reports the component health checks. Any failing component turns
// the answer into 503.
func (s *Server) health(c *gin.Context) {
	checks := s.metrics.GetHealthChecks()

	healthy := true
	for _, ok := range checks {
		if !ok {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = ErrServiceUnavailable.StatusCode
	}
	c.JSON(status, gin.H{
		"status":  healthy,
		"details": checks,
	})
}
