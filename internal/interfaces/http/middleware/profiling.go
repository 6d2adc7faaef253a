package middleware

import (
	"context"
	"slices"
	"strings"

	"github.com/erp/procurement/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling label keys attached to request goroutines
const (
	ProfilingLabelMethod   = "method"
	ProfilingLabelRoute    = "route"
	ProfilingLabelResource = "resource"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	// Enabled controls whether profiling labels are added to requests.
	Enabled bool
	// SkipPaths are paths that don't need profiling labels (e.g., health checks).
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't need profiling labels.
	SkipPathPrefixes []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:          true,
		SkipPaths:        []string{"/health", "/health/live", "/health/ready", "/metrics"},
		SkipPathPrefixes: []string{"/swagger"},
	}
}

// ProfilingWithConfig tags each request with method, route and resource
// labels so Pyroscope profiles can be split by endpoint
// (e.g. resource "orders", route "/api/v1/orders/:id/receipts").
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if slices.Contains(cfg.SkipPaths, path) {
			c.Next()
			return
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		telemetry.WithProfilingLabels(c.Request.Context(), extractProfilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func extractProfilingLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 3)
	if method := c.Request.Method; method != "" {
		labels[ProfilingLabelMethod] = method
	}
	route := c.FullPath()
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if resource := resourceFromRoute(route); resource != "" {
		labels[ProfilingLabelResource] = resource
	}
	return labels
}

// resourceFromRoute returns the first segment after the API prefix.
// "/api/v1/orders/:id" gives "orders", "/system/outbox/stats" gives "system".
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) || strings.HasPrefix(part, ":") {
			continue
		}
		return part
	}
	return ""
}

// isVersionSegment checks if a path segment is an API version (v1, v2, etc.)
func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
