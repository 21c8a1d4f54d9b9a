package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, actionHandler *handler.ScheduledActionHandler, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)

	scheduled := r.Group("/scheduled", authMW)
	scheduled.GET("", actionHandler.List)
	scheduled.POST("", actionHandler.Create)
	scheduled.GET("/:id", actionHandler.GetByID)
	scheduled.PUT("/:id", actionHandler.Update)
	scheduled.DELETE("/:id", actionHandler.Delete)
	scheduled.POST("/:id/execute", actionHandler.Execute)

	r.GET("/templates", authMW, actionHandler.Templates)

	return r
}
