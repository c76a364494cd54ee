package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the handlers onto a gin engine. Tests build the same
// router the server runs, so routing is covered for free.
func NewRouter(authHandler *AuthHandler, messageHandler *MessageHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Public: load balancers health-check this without credentials.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)
	r.POST("/logout", authHandler.Logout)

	r.POST("/messages", messageHandler.Create)
	r.GET("/events", messageHandler.Events)
	r.POST("/users", messageHandler.ResolveUsers)

	return r
}
