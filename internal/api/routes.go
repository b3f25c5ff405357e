package api

import (
	"github.com/labstack/echo/v4"
	"net/http"
	"time"
)

// RegisterRoutes mounts the allocation endpoints. Rule and settings management
// require an admin token.
func RegisterRoutes(e *echo.Echo, orderHandler *OrderHandler, ruleHandler *RuleHandler, jwtSecret string, metricsHandler http.Handler) {
	e.POST("/orders", orderHandler.CreateOrder)
	e.GET("/orders/:id", orderHandler.GetOrder)
	e.PUT("/orders/:id/lines", orderHandler.UpdateLines)
	e.POST("/orders/:id/confirm", orderHandler.ConfirmOrder)
	e.DELETE("/orders/:id", orderHandler.CancelOrder)
	e.GET("/orders/:id/allocation", orderHandler.GetAllocation)
	e.GET("/orders/:id/reservations", orderHandler.GetReservations)

	e.PUT("/customers/:id", orderHandler.UpsertCustomer)
	e.PUT("/products/:id", orderHandler.UpsertProduct)

	admin := []echo.MiddlewareFunc{JWTMiddleware(jwtSecret), RequireAdmin}
	e.GET("/rules", ruleHandler.ListRules, admin...)
	e.POST("/rules", ruleHandler.CreateRule, admin...)
	e.GET("/rules/:id", ruleHandler.GetRule, admin...)
	e.PUT("/rules/:id", ruleHandler.UpdateRule, admin...)
	e.DELETE("/rules/:id", ruleHandler.DeleteRule, admin...)
	e.GET("/settings", ruleHandler.GetSettings, admin...)
	e.PUT("/settings", ruleHandler.UpdateSettings, admin...)

	e.GET("/allocation/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "allocation-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
}
