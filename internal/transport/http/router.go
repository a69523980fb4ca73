package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/akverma/dukaan/internal/handlers"
)

type Deps struct {
	CheckoutHandler *handlers.CheckoutHandler
	AddressHandler  *handlers.AddressHandler
	CartHandler     *handlers.CartHandler
	OrderHandler    *handlers.OrderHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.RemoveFromCart)

	addresses := v1.Group("/addresses")
	addresses.GET("", d.AddressHandler.List)
	addresses.POST("", d.AddressHandler.Create)
	addresses.PUT("/:id", d.AddressHandler.Update)
	addresses.POST("/:id/primary", d.AddressHandler.SetPrimary)
	addresses.DELETE("/:id", d.AddressHandler.Delete)

	checkout := v1.Group("/checkout")
	checkout.POST("", d.CheckoutHandler.Start)
	checkout.GET("", d.CheckoutHandler.View)
	checkout.PUT("/address", d.CheckoutHandler.UpdateAddress)
	checkout.POST("/address/:id/select", d.CheckoutHandler.SelectSavedAddress)
	checkout.POST("/postal", d.CheckoutHandler.ResolvePostal)
	checkout.POST("/locate", d.CheckoutHandler.Locate)
	checkout.PUT("/shipping", d.CheckoutHandler.SelectShipping)
	checkout.POST("/coupon", d.CheckoutHandler.ApplyCoupon)
	checkout.DELETE("/coupon", d.CheckoutHandler.RemoveCoupon)
	checkout.POST("/next", d.CheckoutHandler.Next)
	checkout.POST("/back", d.CheckoutHandler.Back)
	checkout.GET("/payment", d.CheckoutHandler.PaymentRequest)
	checkout.POST("/confirm", d.CheckoutHandler.Confirm)

	orders := v1.Group("/orders")
	orders.GET("", d.OrderHandler.List)
	orders.GET("/:id", d.OrderHandler.Get)
}
