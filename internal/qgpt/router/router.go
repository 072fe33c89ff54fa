// Package router 注册检索服务的 HTTP 路由。
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/qgpt/handler"
	"github.com/kart-io/qgpt/internal/qgpt/metrics"
	"github.com/kart-io/qgpt/pkg/middleware"
)

// NewEngine 创建挂载了通用中间件与全部路由的 gin 引擎。m 不为 nil 时
// 记录请求指标并暴露 /metrics。
func NewEngine(mode string, h *handler.Handler, m *metrics.Metrics) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())
	if m != nil {
		engine.Use(middleware.Metrics(m))
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	Register(engine, h)
	return engine
}

// Register 注册路由。
func Register(engine *gin.Engine, h *handler.Handler) {
	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		v1.GET("/databases", h.ListDatabases)
		v1.POST("/search", h.Search)
		v1.POST("/evaluate", h.Evaluate)
	}

	logger.Info("HTTP routes registered")
}
