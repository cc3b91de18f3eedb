package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Glorc12/AirConditionerCompany/internal/config"
	"github.com/Glorc12/AirConditionerCompany/internal/http/handlers"
	"github.com/Glorc12/AirConditionerCompany/internal/http/middleware"
	"github.com/Glorc12/AirConditionerCompany/internal/lifecycle"
	"github.com/Glorc12/AirConditionerCompany/internal/session"

	_ "github.com/Glorc12/AirConditionerCompany/docs"
)

func Router(cfg config.Config, sessions *session.Manager, ctrl *lifecycle.Controller, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Sessions:   sessions,
		Controller: ctrl,
		Validator:  lifecycle.NewValidator(),
		Logger:     logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.POST("/session/login", h.Login)
		api.POST("/session/logout", h.Logout)
	}

	authed := api.Group("")
	authed.Use(middleware.RequireSession(sessions))
	{
		authed.GET("/session", h.SessionInfo)
		authed.POST("/sync/pull", h.Pull)
		authed.GET("/requests", h.RequestsList)
		authed.POST("/requests", h.RequestCreate)
		authed.GET("/requests/:id", h.RequestDetails)
		authed.DELETE("/requests/:id", h.RequestDelete)
		authed.POST("/requests/:id/advance", h.RequestAdvance)
		authed.POST("/requests/:id/complete", h.RequestComplete)
		authed.POST("/requests/:id/assign", h.RequestAssign)
		authed.POST("/requests/:id/deadline", h.RequestDeadline)
		authed.GET("/requests/:id/comments", h.CommentsList)
		authed.POST("/requests/:id/comments", h.CommentAdd)
		authed.GET("/specialists", h.SpecialistsList)
		authed.GET("/statistics", h.Statistics)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
