package exam

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/labledger/labledger/pkg/pagination"
)

// Handler exposes the read-only query boundary consumed by the dashboard.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the query routes on an API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/test-codes", h.ListTestCodes)
	g.GET("/patients/:id/records", h.ListPatientRecords)
	g.GET("/patients/:id/series/:code", h.GetPatientSeries)
	g.GET("/reference-ranges", h.ListReferenceRanges)
	g.POST("/admin/reload", h.ReloadStore)
}

// ListTestCodes returns the distinct test codes present in the store.
func (h *Handler) ListTestCodes(c echo.Context) error {
	codes := h.svc.TestCodes()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"test_codes": codes,
		"count":      len(codes),
	})
}

// ListPatientRecords returns one patient's records, paginated, in
// canonical order.
func (h *Handler) ListPatientRecords(c echo.Context) error {
	patientID := c.Param("id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient id is required")
	}

	p := pagination.FromContext(c)
	records := h.svc.RecordsFor(patientID)
	total := len(records)

	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}

	resp := pagination.NewResponse(records[start:end], total, p.Limit, p.Offset)
	resp.Links = p.Links(c.Request().URL.Path, total)
	return c.JSON(http.StatusOK, resp)
}

// GetPatientSeries returns the chronological series with statistics for
// one patient and test code.
func (h *Handler) GetPatientSeries(c echo.Context) error {
	q := SeriesQuery{
		PatientID: c.Param("id"),
		TestCode:  c.Param("code"),
	}

	if raw := c.QueryParam("from"); raw != "" {
		from, err := ParseDate(DateLayout, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		q.From = from
	}
	if raw := c.QueryParam("to"); raw != "" {
		to, err := ParseDate(DateLayout, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		q.To = to
	}
	if raw := c.QueryParam("window"); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil || window < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "window must be a positive integer")
		}
		q.Window = window
	}

	series, err := h.svc.Series(q)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no records for patient and test code")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, series)
}

// ListReferenceRanges returns the advisory reference table.
func (h *Handler) ListReferenceRanges(c echo.Context) error {
	ranges := h.svc.ReferenceRanges()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reference_ranges": ranges,
		"count":            len(ranges),
	})
}

// ReloadStore re-reads the store file and swaps the query snapshot.
// Queries already in flight keep the snapshot they started with.
func (h *Handler) ReloadStore(c echo.Context) error {
	n, err := h.svc.Reload()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": n,
	})
}
