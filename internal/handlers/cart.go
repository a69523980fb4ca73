package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/cart"
	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/models"
)

// CartHandler mutates cart rows directly but always routes through
// cart.Service.Changed so a live checkout session sees the update.
type CartHandler struct {
	DB        *gorm.DB
	Cart      *cart.Service
	JWTSecret []byte
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	items, err := h.Cart.Items(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items":    items,
		"subtotal": cart.Subtotal(items),
	})
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint            `json:"product_id"`
		VariantID *uint           `json:"variant_id"`
		BundleID  *uint           `json:"bundle_id"`
		Name      string          `json:"name"`
		Brand     string          `json:"brand"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Quantity  uint            `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	db := h.DB.WithContext(c.Request().Context())
	var item models.CartItem
	err = db.Where("user_id = ? AND product_id = ?", ident.UserID, req.ProductID).First(&item).Error
	switch {
	case err == nil:
		item.Quantity += req.Quantity
		if err := db.Save(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{
			UserID:    ident.UserID,
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			BundleID:  req.BundleID,
			Name:      req.Name,
			Brand:     req.Brand,
			UnitPrice: req.UnitPrice,
			Quantity:  req.Quantity,
		}
		if err := db.Create(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Cart.Changed(ident.UserID)
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	if err := h.DB.WithContext(c.Request().Context()).
		Where("id = ? AND user_id = ?", id, ident.UserID).
		Delete(&models.CartItem{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Cart.Changed(ident.UserID)
	return c.NoContent(http.StatusNoContent)
}
