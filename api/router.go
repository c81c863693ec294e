package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter mcpHandler 为 nil 时不挂载 MCP 端点
func SetupRouter(handler *Handler, mcpHandler http.Handler, isDebug bool) *gin.Engine {
	var r *gin.Engine
	if isDebug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// TraceID 中间件 - 必须在其他中间件之前
	r.Use(TraceIDMiddleware())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: false, // AllowAllOrigins 为 true 时必须设置为 false
	}))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("/run", handler.RunCampaign)
			campaigns.GET("", handler.ListCampaigns)
			campaigns.GET("/:id", handler.GetCampaign)
		}

		api.GET("/browser/status", handler.GetBrowserStatus)

		if mcpHandler != nil {
			api.Any("/mcp/message", gin.WrapH(mcpHandler))
		}
	}

	return r
}
