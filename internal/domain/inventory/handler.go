package inventory

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/inventory", h.List)
	api.POST("/inventory", h.Create)
	api.PUT("/inventory/:id/stock", h.AddStock)
}

type createResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ItemID  int64  `json:"itemId"`
	Item    *Item  `json:"item"`
}

type stockResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Item    *Item  `json:"item"`
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apierr.FromBind(err, "Invalid request body")
	}
	item, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{
		Success: true,
		Message: "Inventory item added successfully",
		ItemID:  item.ID,
		Item:    item,
	})
}

func (h *Handler) AddStock(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apierr.Validation("Invalid inventory item ID")
	}
	var req StockRequest
	if err := c.Bind(&req); err != nil {
		return apierr.FromBind(err, "Invalid additional stock amount")
	}
	item, err := h.svc.AddStock(c.Request().Context(), id, req.AdditionalStock)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stockResponse{
		Success: true,
		Message: "Stock updated successfully",
		Item:    item,
	})
}
