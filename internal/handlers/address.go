package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/validation"
)

type AddressHandler struct {
	Book      *addressbook.Service
	JWTSecret []byte
}

type addressRequest struct {
	Name       string   `json:"name"`
	Phone      string   `json:"phone"`
	PhoneCode  string   `json:"phone_code"`
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postal_code"`
	Country    string   `json:"country"`
	Label      string   `json:"label"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// validate runs the field validators; email is an account attribute and is
// not part of a saved address.
func (r *addressRequest) validate() map[string]string {
	errs := map[string]string{}
	check := func(field string, err error) {
		if err != nil {
			errs[field] = err.Error()
		}
	}

	name, err := validation.Name(r.Name)
	check("name", err)
	phone, err := validation.Phone(r.Phone, r.Country)
	check("phone", err)
	street, err := validation.Street(r.Street)
	check("street", err)
	postal, err := validation.PostalCode(r.PostalCode, r.Country)
	check("postal_code", err)
	if strings.TrimSpace(r.City) == "" {
		errs["city"] = validation.ErrCityRequired.Error()
	}
	if strings.TrimSpace(r.State) == "" {
		errs["state"] = validation.ErrStateRequired.Error()
	}
	if len(errs) > 0 {
		return errs
	}

	r.Name, r.Phone, r.Street, r.PostalCode = name, phone, street, postal
	return nil
}

func (r *addressRequest) model(userID uint) *models.SavedAddress {
	label := r.Label
	if label == "" {
		label = addressbook.DeriveLabel(r.Street, r.City)
	}
	return &models.SavedAddress{
		UserID:     userID,
		Name:       r.Name,
		Phone:      r.Phone,
		PhoneCode:  r.PhoneCode,
		Street:     r.Street,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Country:    r.Country,
		Label:      label,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
	}
}

func (h *AddressHandler) List(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}
	rows, err := h.Book.List(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *AddressHandler) Create(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if errs := req.validate(); errs != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"field_errors": errs})
	}

	addr := req.model(ident.UserID)
	saved, err := h.Book.Save(c.Request().Context(), addr)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !saved {
		// a matching address already exists; not an error
		return c.JSON(http.StatusOK, map[string]string{"message": "address already saved"})
	}
	return c.JSON(http.StatusCreated, addr)
}

func (h *AddressHandler) Update(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address id")
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if errs := req.validate(); errs != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"field_errors": errs})
	}

	addr := req.model(ident.UserID)
	addr.ID = id
	if _, err := h.Book.Save(c.Request().Context(), addr); err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, addr)
}

func (h *AddressHandler) SetPrimary(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address id")
	}
	if err := h.Book.SetPrimary(c.Request().Context(), ident.UserID, id); err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AddressHandler) Delete(c echo.Context) error {
	ident, err := identity.FromRequest(c, h.JWTSecret)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address id")
	}
	if err := h.Book.Delete(c.Request().Context(), ident.UserID, id); err != nil {
		if errors.Is(err, addressbook.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
