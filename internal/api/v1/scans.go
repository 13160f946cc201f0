package v1

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/scan"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// CreateScan handles POST /api/v1/scans. The multipart form carries the
// image in "image" and optional user_id, lat, lon and accuracy fields.
func (c *Controller) CreateScan(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, err, "multipart field \"image\" is required", http.StatusBadRequest)
	}
	c.metrics.RecordUpload(file.Size)

	loc, err := parseLocationForm(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid location", http.StatusBadRequest)
	}

	src, err := file.Open()
	if err != nil {
		return c.HandleError(ctx, err, "failed to read upload", http.StatusBadRequest)
	}
	defer src.Close()

	res, err := c.Service.Scan(ctx.Request().Context(), scan.Request{
		Image:    src,
		UserID:   strings.TrimSpace(ctx.FormValue("user_id")),
		Location: loc,
	})
	if err != nil {
		return c.HandleError(ctx, err, "scan failed", statusFor(err))
	}

	return ctx.JSON(http.StatusCreated, ScanResponse{
		Record:         newRecordResponse(&res.Record),
		Classification: res.Classification,
		Quality:        res.Quality,
	})
}

// parseLocationForm reads lat, lon and accuracy. Both coordinates or
// neither must be present.
func parseLocationForm(ctx echo.Context) (*datastore.Location, error) {
	latStr := strings.TrimSpace(ctx.FormValue("lat"))
	lonStr := strings.TrimSpace(ctx.FormValue("lon"))
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, errors.Newf("lat and lon must be given together").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}

	var loc datastore.Location
	var err error
	if loc.Latitude, err = strconv.ParseFloat(latStr, 64); err != nil {
		return nil, formValueError("lat", latStr, err)
	}
	if loc.Longitude, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return nil, formValueError("lon", lonStr, err)
	}
	if accStr := strings.TrimSpace(ctx.FormValue("accuracy")); accStr != "" {
		if loc.Accuracy, err = strconv.ParseFloat(accStr, 64); err != nil {
			return nil, formValueError("accuracy", accStr, err)
		}
	}
	if err := loc.Validate(); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return &loc, nil
}

func formValueError(field, value string, err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

// ListScans handles GET /api/v1/scans. Optional query parameters: label,
// synced (true or false), user_id and limit.
func (c *Controller) ListScans(ctx echo.Context) error {
	filter, err := parseListFilter(ctx.QueryParams())
	if err != nil {
		return c.HandleError(ctx, err, "invalid query", http.StatusBadRequest)
	}

	records, err := c.Service.History()
	if err != nil {
		return c.HandleError(ctx, err, "failed to load history", statusFor(err))
	}

	resp := ListResponse{Records: []RecordResponse{}}
	for i := range records {
		if !filter.matches(&records[i]) {
			continue
		}
		resp.Total++
		if filter.limit > 0 && len(resp.Records) >= filter.limit {
			continue
		}
		resp.Records = append(resp.Records, newRecordResponse(&records[i]))
	}
	return ctx.JSON(http.StatusOK, resp)
}

type listFilter struct {
	label  *soil.Type
	synced *bool
	userID string
	limit  int
}

func parseListFilter(q url.Values) (listFilter, error) {
	var f listFilter
	if v := q.Get("label"); v != "" {
		t, err := soil.ParseType(v)
		if err != nil {
			return f, err
		}
		f.label = &t
	}
	if v := q.Get("synced"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, err
		}
		f.synced = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.Newf("limit must be a non-negative integer, got %q", v).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
		f.limit = n
	}
	f.userID = q.Get("user_id")
	return f, nil
}

func (f listFilter) matches(r *datastore.Record) bool {
	switch {
	case f.label != nil && r.Label != *f.label:
		return false
	case f.synced != nil && r.Synced != *f.synced:
		return false
	case f.userID != "" && r.UserID != f.userID:
		return false
	}
	return true
}

// GetScan handles GET /api/v1/scans/:id.
func (c *Controller) GetScan(ctx echo.Context) error {
	record, err := c.Service.Get(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "record not available", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(&record))
}

// UpdateLocation handles PUT /api/v1/scans/:id/location.
func (c *Controller) UpdateLocation(ctx echo.Context) error {
	var req LocationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.Latitude == nil || req.Longitude == nil {
		return c.HandleError(ctx, nil, "lat and lon are required", http.StatusBadRequest)
	}

	loc := datastore.Location{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.Timestamp != nil {
		loc.Timestamp = *req.Timestamp
	}

	record, err := c.Service.AttachLocation(ctx.Param("id"), loc)
	if err != nil {
		return c.HandleError(ctx, err, "failed to attach location", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(&record))
}

// MarkSynced handles POST /api/v1/scans/:id/synced.
func (c *Controller) MarkSynced(ctx echo.Context) error {
	var req SyncedRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
		}
	}
	if req.RemoteURL != "" {
		if u, err := url.Parse(req.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
			return c.HandleError(ctx, err, "remote_url must be an absolute URL", http.StatusBadRequest)
		}
	}

	record, err := c.Service.MarkSynced(ctx.Param("id"), req.RemoteURL)
	if err != nil {
		return c.HandleError(ctx, err, "failed to mark record synced", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(&record))
}

// DeleteScan handles DELETE /api/v1/scans/:id.
func (c *Controller) DeleteScan(ctx echo.Context) error {
	if err := c.Service.Delete(ctx.Param("id")); err != nil {
		return c.HandleError(ctx, err, "failed to delete record", statusFor(err))
	}
	return ctx.NoContent(http.StatusNoContent)
}
