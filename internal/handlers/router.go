package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/skillcheck/session-engine/internal/services"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
}

func NewHandlerManager(engine *services.Engine, logger *slog.Logger) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(engine, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/resumable", hm.sessionHandler.GetResumable)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/resume", hm.sessionHandler.ResumeSession)
			sessions.DELETE("/:id", hm.sessionHandler.DiscardSession)

			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/acknowledge", hm.sessionHandler.AcknowledgeExplanation)
			sessions.POST("/:id/previous", hm.sessionHandler.PreviousQuestion)

			sessions.POST("/:id/complete", hm.sessionHandler.CompleteSession)
			sessions.GET("/:id/result", hm.sessionHandler.GetResult)
			sessions.GET("/:id/result/export", hm.sessionHandler.ExportResult)
		}
	}
}
