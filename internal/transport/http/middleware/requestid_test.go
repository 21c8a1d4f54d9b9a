package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/requestid"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func requestIDEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Security())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, requestid.FromContext(c.Request.Context()))
	})
	return r
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"kept when well formed", "trace-123", true},
		{"replaced when too long", strings.Repeat("a", 200), false},
		{"replaced when it has spaces", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			requestIDEngine().ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q should match and be set", got, w.Body.String())
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("id %q should have been replaced", got)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("Cache-Control") != "no-store" {
				t.Error("security headers missing")
			}
		})
	}
}
