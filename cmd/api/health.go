package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthCheck func(ctx context.Context) bool

// healthz reports each dependency and answers 503 with status "degraded"
// when any of them is down.
func healthz(checks map[string]healthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{}
		healthy := true
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			healthy = healthy && ok
		}
		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		body["status"] = status
		c.JSON(code, body)
	}
}
