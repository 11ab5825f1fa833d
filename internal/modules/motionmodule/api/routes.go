package api

import (
	"github.com/geneseez/geneseez/internal/apiroutes"
	"github.com/gin-gonic/gin"
)

// BasePath is the prefix of every motion endpoint
const BasePath = "/api/v1/motion"

// RegisterRoutes registers all motion module API routes.
//
// API Structure:
//
//	/api/v1/motion
//	├── /sessions                          - Session lifecycle
//	│   └── /:id
//	│       ├── /slots/:slot               - Upload, preview and remove inputs
//	│       ├── /generate, /reset          - Actions
//	│       ├── /result, /download         - Output
//	│       └── /ws, /events               - Live snapshots
//	└── /limits                            - Upload hints
func RegisterRoutes(router gin.IRouter, handler *APIHandler) {
	v1 := router.Group(BasePath)
	{
		v1.POST("/sessions", handler.CreateSession)
		v1.GET("/sessions/:id", handler.GetSession)
		v1.DELETE("/sessions/:id", handler.DeleteSession)

		// Inputs
		v1.PUT("/sessions/:id/slots/:slot", handler.Upload)
		v1.DELETE("/sessions/:id/slots/:slot", handler.RemoveSlot)
		v1.GET("/sessions/:id/slots/:slot", handler.PreviewSlot)
		v1.HEAD("/sessions/:id/slots/:slot", handler.PreviewSlot)
		v1.GET("/sessions/:id/slots/:slot/datauri", handler.SlotDataURI)

		// Actions
		v1.POST("/sessions/:id/generate", handler.Generate)
		v1.POST("/sessions/:id/reset", handler.Reset)

		// Output
		v1.GET("/sessions/:id/result", handler.PreviewResult)
		v1.HEAD("/sessions/:id/result", handler.PreviewResult)
		v1.GET("/sessions/:id/download", handler.Download)

		// Live updates
		v1.GET("/sessions/:id/ws", handler.HandleWebSocket)
		v1.GET("/sessions/:id/events", handler.HandleEvents)

		v1.GET("/limits", handler.GetLimits)
	}

	apiroutes.Register(BasePath+"/sessions", "POST", "Create a motion transfer session.")
	apiroutes.Register(BasePath+"/sessions/:id", "GET, DELETE", "Get or tear down a session.")
	apiroutes.Register(BasePath+"/sessions/:id/slots/:slot", "PUT, GET, DELETE", "Upload, preview or remove the image or video input.")
	apiroutes.Register(BasePath+"/sessions/:id/slots/:slot/datauri", "GET", "Get the data URI of an input.")
	apiroutes.Register(BasePath+"/sessions/:id/generate", "POST", "Start generating the result.")
	apiroutes.Register(BasePath+"/sessions/:id/reset", "POST", "Clear inputs and result.")
	apiroutes.Register(BasePath+"/sessions/:id/result", "GET", "Preview the generated result.")
	apiroutes.Register(BasePath+"/sessions/:id/download", "GET", "Download the generated result.")
	apiroutes.Register(BasePath+"/sessions/:id/ws", "GET", "WebSocket stream of session snapshots.")
	apiroutes.Register(BasePath+"/sessions/:id/events", "GET", "Server-sent events stream of session snapshots.")
	apiroutes.Register(BasePath+"/limits", "GET", "Upload size and type hints.")
}
