package appointment

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

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
	api.GET("/appointments", h.ListPending)
	api.GET("/appointments/pending", h.ListConfirmed)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments", h.Create)
	api.PUT("/appointments/:id/confirm", h.Confirm)
	api.PUT("/appointments/:id/complete", h.Complete)
	api.PUT("/appointments/:id/cancel", h.Cancel)
	api.GET("/schedule", h.Schedule)
}

type createResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	AppointmentID int64        `json:"appointmentId"`
	Appointment   *Appointment `json:"appointment"`
}

type transitionResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AppointmentID int64  `json:"appointmentId"`
	Status        Status `json:"status"`
	Outcome       string `json:"outcome"`
	AffectedRows  int64  `json:"affectedRows"`
}

type completeResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	AppointmentID   int64  `json:"appointmentId"`
	PatientID       int64  `json:"patientId"`
	AppointmentDate string `json:"appointmentDate"`
	PatientCreated  bool   `json:"patientCreated"`
	Outcome         string `json:"outcome"`
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.Validation("Invalid appointment ID")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apierr.FromBind(err, "Invalid request body")
	}

	var photo *multipart.FileHeader
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("photo")
		switch {
		case err == nil:
			photo = fh
		case errors.Is(err, http.ErrMissingFile):
		default:
			return apierr.Validation("Invalid photo upload")
		}
	}

	a, err := h.svc.Create(c.Request().Context(), req, photo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{
		Success:       true,
		Message:       "Appointment added successfully",
		AppointmentID: a.ID,
		Appointment:   a,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListPending(c echo.Context) error {
	items, err := h.svc.ListPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListConfirmed(c echo.Context) error {
	items, err := h.svc.ListConfirmed(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Schedule(c echo.Context) error {
	rows, err := h.svc.Schedule(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) Confirm(c echo.Context) error {
	return h.transition(c, h.svc.Confirm, "Appointment confirmed successfully", "Appointment is already confirmed")
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel, "Appointment cancelled successfully", "Appointment is already cancelled")
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id int64) (*TransitionResult, error), applied, noop string) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := fn(c.Request().Context(), id)
	if err != nil {
		return err
	}
	msg := applied
	if res.Outcome == Noop {
		msg = noop
	}
	return c.JSON(http.StatusOK, transitionResponse{
		Success:       true,
		Message:       msg,
		AppointmentID: res.AppointmentID,
		Status:        res.Status,
		Outcome:       res.Outcome.String(),
		AffectedRows:  res.AffectedRows,
	})
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Complete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	msg := "Appointment completed successfully - added to patient records and schedule"
	if res.Outcome == Noop {
		msg = "Appointment is already completed"
	}
	return c.JSON(http.StatusOK, completeResponse{
		Success:         true,
		Message:         msg,
		AppointmentID:   res.AppointmentID,
		PatientID:       res.PatientID,
		AppointmentDate: res.AppointmentDate,
		PatientCreated:  res.PatientCreated,
		Outcome:         res.Outcome.String(),
	})
}
