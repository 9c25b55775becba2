package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/vm-ec/vm-appetite-check/controllers"
	"github.com/vm-ec/vm-appetite-check/middleware"
)

// RegisterCanvasRoutes wires the appetite portal API under /canvas.
// Every route requires gateway-provided identity headers.
func RegisterCanvasRoutes(
	r *gin.Engine,
	ruleController *controllers.RuleController,
	uploadHandler *controllers.UploadHandler,
	carrierController *controllers.CarrierController,
) {
	canvas := r.Group("/canvas")
	canvas.Use(middleware.AuthMiddleware())
	{
		canvas.GET("/rules", ruleController.ListRules)
		canvas.POST("/rules", ruleController.CreateRule)
		canvas.GET("/rule/:id", ruleController.GetRule)
		canvas.PUT("/rule/:id", ruleController.UpdateRule)
		canvas.DELETE("/rule/:id", middleware.AdminOnly(), ruleController.DeleteRule)

		canvas.POST("/rules/upload", uploadHandler.UploadRules)
		canvas.GET("/rules/upload/jobs/:id", uploadHandler.GetUploadJobStatus)
		canvas.GET("/rules/upload/:id/report", uploadHandler.GetUploadReport)

		canvas.GET("/carriers", carrierController.ListCarriers)
		canvas.POST("/carriers", carrierController.CreateCarrier)
		canvas.GET("/carrier/:id", carrierController.GetCarrier)
	}
}
