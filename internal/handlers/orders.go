package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/util"
)

type OrderHandler struct {
	DB        *gorm.DB
	JWTSecret []byte
}

func (h *OrderHandler) List(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	var orders []models.Order
	if err := h.DB.WithContext(c.Request().Context()).
		Where("user_id = ?", ident.UserID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) Get(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	db := h.DB.WithContext(c.Request().Context())
	var order models.Order
	if err := db.Where("id = ? AND user_id = ?", id, ident.UserID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var items []models.OrderItem
	if err := db.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"order": order,
		"items": items,
	})
}
