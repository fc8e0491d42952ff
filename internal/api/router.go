package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the portfolio API under /api/v1.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/wallets", h.ListWallets)
		v1.POST("/wallets", h.AddWallet)
		v1.PATCH("/wallets/:id", h.RenameWallet)
		v1.DELETE("/wallets/:id", h.RemoveWallet)

		v1.POST("/wallets/:id/refresh", h.RefreshWallet)
		v1.POST("/refresh", h.RefreshAll)
		v1.POST("/reconnect", h.Reconnect)

		v1.GET("/portfolio", h.Portfolio)
		v1.GET("/wallets/:id/history", h.History)
		v1.GET("/snapshots", h.Snapshots)

		v1.GET("/export", h.Export)
		v1.POST("/import", h.Import)

		v1.POST("/wallets/:id/load", h.StartLoad)
		v1.POST("/wallets/:id/load/interact", h.Interact)
		v1.GET("/wallets/:id/load", h.LoadProgress)
		v1.DELETE("/wallets/:id/load", h.StopLoad)
	}
}
