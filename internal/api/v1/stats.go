package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/soilnet-go/internal/export"
)

// GetStatistics handles GET /api/v1/stats.
func (c *Controller) GetStatistics(ctx echo.Context) error {
	s, err := c.Service.Statistics(c.now())
	if err != nil {
		return c.HandleError(ctx, err, "failed to compute statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, s)
}

// Export handles GET /api/v1/export?format=json|csv|yaml. JSON is the default.
func (c *Controller) Export(ctx echo.Context) error {
	formatParam := ctx.QueryParam("format")
	if formatParam == "" {
		formatParam = string(export.FormatJSON)
	}
	format, err := export.ParseFormat(formatParam)
	if err != nil {
		return c.HandleError(ctx, err, "unsupported export format", http.StatusBadRequest)
	}

	rows, err := c.Service.ExportRows()
	if err != nil {
		return c.HandleError(ctx, err, "failed to load records", statusFor(err))
	}

	filename := fmt.Sprintf("soilnet-export-%s.%s", c.now().Format("20060102"), format)
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, format.ContentType())
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	res.WriteHeader(http.StatusOK)
	return export.Write(res, rows, format)
}
