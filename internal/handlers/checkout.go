package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/checkout"
	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/location"
	"github.com/akverma/dukaan/internal/logging"
)

type CheckoutHandler struct {
	Manager   *checkout.Manager
	JWTSecret []byte
}

// checkoutView is what every checkout endpoint returns: the draft plus the
// bits the UI derives from it.
type checkoutView struct {
	Draft       checkout.DraftOrder       `json:"draft"`
	SaveOffered bool                      `json:"save_offered"`
	Options     []checkout.ShippingOption `json:"shipping_options"`
	Review      *checkout.ReviewSummary   `json:"review,omitempty"`
	Order       any                       `json:"order,omitempty"`
}

func (h *CheckoutHandler) view(s *checkout.Session) checkoutView {
	v := checkoutView{
		Draft:       s.Draft(),
		SaveOffered: s.SaveOffered(),
		Options:     checkout.Options(),
		Review:      s.Review(),
	}
	if o := s.Order(); o != nil {
		v.Order = o
	}
	return v
}

func (h *CheckoutHandler) session(c echo.Context) (*checkout.Session, error) {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return nil, err
	}
	s, ok := h.Manager.Get(ident.UserID)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no active checkout")
	}
	return s, nil
}

func (h *CheckoutHandler) Start(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	s, err := h.Manager.Start(c.Request().Context(), ident)
	if errors.Is(err, checkout.ErrEmptyCart) {
		return echo.NewHTTPError(http.StatusBadRequest, "your cart is empty")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) View(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) UpdateAddress(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var fields map[string]string
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	s.UpdateAddress(fields)
	return c.JSON(http.StatusOK, h.view(s))
}

// ResolvePostal is the explicit lookup used on field blur; while-typing
// lookups go through the debounced path inside the session.
func (h *CheckoutHandler) ResolvePostal(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.ResolvePostal(c.Request().Context()); err != nil && !errors.Is(err, location.ErrNotServiceable) {
		logging.FromContext(c.Request().Context()).Error("postal resolve error", "err", err)
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) Locate(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req struct {
		Lat   *float64 `json:"lat"`
		Lon   *float64 `json:"lon"`
		Error string   `json:"error"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	loc := location.GeolocatorFunc(func(context.Context) (location.Coordinates, error) {
		if req.Error != "" {
			return location.Coordinates{}, location.FailureFromCode(req.Error)
		}
		if req.Lat == nil || req.Lon == nil {
			return location.Coordinates{}, location.ErrPositionUnavailable
		}
		return location.Coordinates{Lat: *req.Lat, Lon: *req.Lon}, nil
	})

	if err := s.UseDeviceLocation(c.Request().Context(), loc); err != nil {
		if errors.Is(err, checkout.ErrLocateInFlight) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) SelectSavedAddress(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address id")
	}
	if err := s.SelectSavedAddress(c.Request().Context(), id); err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) SelectShipping(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req struct {
		OptionID string `json:"option_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := s.SelectShipping(req.OptionID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) ApplyCoupon(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	res, err := s.ApplyCoupon(c.Request().Context(), req.Code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// rejection is business feedback, not an HTTP error
	return c.JSON(http.StatusOK, map[string]any{
		"coupon": res,
		"draft":  s.Draft(),
	})
}

func (h *CheckoutHandler) RemoveCoupon(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.RemoveCoupon()
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) Next(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	err = s.Next(c.Request().Context())
	var blocked *checkout.BlockedError
	if errors.As(err, &blocked) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"message":      blocked.Error(),
			"field_errors": blocked.Fields,
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) Back(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.Back()
	return c.JSON(http.StatusOK, h.view(s))
}

func (h *CheckoutHandler) PaymentRequest(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	req, err := s.PaymentRequest()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"reference": req.Reference,
		"uri":       req.URI, // also the copy-to-clipboard payload
		"qr_png":    base64.StdEncoding.EncodeToString(req.QRPNG),
	})
}

func (h *CheckoutHandler) Confirm(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	order, err := s.Confirm(c.Request().Context())
	switch {
	case errors.Is(err, checkout.ErrConfirmInFlight), errors.Is(err, checkout.ErrAlreadyPlaced):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrNotAtPayment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		logging.FromContext(c.Request().Context()).Error("order creation failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError,
			"we couldn't place your order; your cart is untouched, please try again")
	}
	return c.JSON(http.StatusCreated, order)
}
