package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/service"
)

// Handler exposes the exploration session as a JSON API mirroring the MCP
// tool surface. Mutations audit under the "http" tool name.
type Handler struct {
	session *service.Session
	logger  *slog.Logger
}

func NewHandler(session *service.Session, logger *slog.Logger) *Handler {
	return &Handler{session: session, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/columns", h.ListColumns)
	api.GET("/state", h.GetState)
	api.GET("/table", h.GetTable)
	api.GET("/events", h.Events)

	api.POST("/filters", h.AddFilter)
	api.PUT("/filters/:id", h.UpdateFilter)
	api.DELETE("/filters/:id", h.RemoveFilter)

	api.PUT("/selection", h.ReportSelection)
	api.DELETE("/selection", h.ClearSelection)

	api.GET("/scatters", h.ListScatters)
	api.POST("/scatters", h.ConfigureScatter)
	api.PUT("/scatters/:id", h.ConfigureScatter)
	api.DELETE("/scatters/:id", h.RemoveScatter)
	api.GET("/scatters/:id/points", h.GetScatterPoints)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListColumns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Columns())
}

func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.State())
}

func (h *Handler) GetTable(c echo.Context) error {
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	return c.JSON(http.StatusOK, h.session.TableRows(c.Request().Context(), offset, limit))
}

type addFilterRequest struct {
	Column string `json:"column"`
}

func (h *Handler) AddFilter(c echo.Context) error {
	var req addFilterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Column == "" {
		return badRequest(c, "column is required")
	}

	ctx := service.WithToolName(c.Request().Context(), "http")
	state, err := h.session.AddFilter(ctx, req.Column)
	if err != nil {
		return h.renderError(c, "add_filter", err)
	}
	return c.JSON(http.StatusCreated, state)
}

// updateFilterRequest distinguishes absent fields from zero values so one
// body shape serves all three filter kinds.
type updateFilterRequest struct {
	Low     *float64  `json:"low"`
	High    *float64  `json:"high"`
	Values  *[]string `json:"values"`
	Pattern *string   `json:"pattern"`
}

func (r updateFilterRequest) params() (domain.FilterParams, error) {
	switch {
	case r.Values != nil:
		return domain.CategorySet{Values: *r.Values}, nil
	case r.Pattern != nil:
		return domain.TextPattern{Pattern: *r.Pattern}, nil
	case r.Low != nil && r.High != nil:
		return domain.NumericRange{Low: *r.Low, High: *r.High}, nil
	case r.Low != nil || r.High != nil:
		return nil, fmt.Errorf("numeric filters need both low and high")
	default:
		return nil, fmt.Errorf("provide low and high, values, or pattern")
	}
}

func (h *Handler) UpdateFilter(c echo.Context) error {
	var req updateFilterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	params, err := req.params()
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := service.WithToolName(c.Request().Context(), "http")
	state, err := h.session.UpdateFilter(ctx, c.Param("id"), params)
	if err != nil {
		return h.renderError(c, "update_filter", err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *Handler) RemoveFilter(c echo.Context) error {
	ctx := service.WithToolName(c.Request().Context(), "http")
	if err := h.session.RemoveFilter(ctx, c.Param("id")); err != nil {
		return h.renderError(c, "remove_filter", err)
	}
	return c.JSON(http.StatusOK, h.session.State().Frame)
}

type selectionRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) ReportSelection(c echo.Context) error {
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.IDs == nil {
		return badRequest(c, "ids is required")
	}

	ctx := service.WithToolName(c.Request().Context(), "http")
	return c.JSON(http.StatusOK, h.session.ReportSelection(ctx, req.IDs))
}

func (h *Handler) ClearSelection(c echo.Context) error {
	ctx := service.WithToolName(c.Request().Context(), "http")
	return c.JSON(http.StatusOK, h.session.ClearSelection(ctx))
}

func (h *Handler) ListScatters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Scatters())
}

func (h *Handler) ConfigureScatter(c echo.Context) error {
	var spec domain.ScatterSpec
	if err := c.Bind(&spec); err != nil {
		return badRequest(c, "invalid request body")
	}
	// PUT pins the id from the path; POST creates (or takes the body's id).
	if id := c.Param("id"); id != "" {
		spec.ID = id
	}
	if spec.X == "" || spec.Y == "" {
		return badRequest(c, "x and y are required")
	}

	ctx := service.WithToolName(c.Request().Context(), "http")
	valid, err := h.session.ConfigureScatter(ctx, spec)
	if err != nil {
		return h.renderError(c, "configure_scatter", err)
	}
	return c.JSON(http.StatusOK, valid)
}

func (h *Handler) RemoveScatter(c echo.Context) error {
	ctx := service.WithToolName(c.Request().Context(), "http")
	if err := h.session.RemoveScatter(ctx, c.Param("id")); err != nil {
		return h.renderError(c, "remove_scatter", err)
	}
	return c.JSON(http.StatusOK, h.session.Scatters())
}

func (h *Handler) GetScatterPoints(c echo.Context) error {
	points, err := h.session.ScatterPoints(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.renderError(c, "get_scatter_points", err)
	}
	if points == nil {
		points = []domain.ScatterPoint{}
	}
	return c.JSON(http.StatusOK, points)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// renderError maps engine failures onto HTTP statuses: unknown ids and
// columns are 404, validation failures 400, everything else a logged 500
// with a generic body.
func (h *Handler) renderError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownColumn),
		errors.Is(err, domain.ErrUnknownFilter),
		errors.Is(err, domain.ErrUnknownScatter):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.Is(err, domain.ErrInvalidColumn),
		errors.Is(err, domain.ErrParamsMismatch),
		errors.Is(err, domain.ErrInvalidPattern),
		errors.Is(err, domain.ErrInvalidSizeColumn),
		errors.Is(err, domain.ErrInvalidColorMode),
		errors.Is(err, domain.ErrOutOfDomain):
		return badRequest(c, err.Error())

	default:
		h.logger.Error("request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("internal error executing %s (check server logs)", op),
		})
	}
}
