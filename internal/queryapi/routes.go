package queryapi

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures every route on router.
func SetupRoutes(router *gin.Engine, handler *Handler, hub *Hub) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", handler.GetStatus)

		databases := v1.Group("/databases")
		databases.GET("/:name/info", handler.GetInfo)
		databases.GET("/:name/fetch", handler.GetFetch)
		databases.POST("/:name/update", handler.PostUpdate)
		if hub != nil {
			databases.GET("/:name/ws", ServeWebSocket(hub))
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})
}
