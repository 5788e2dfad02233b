package handlers

import (
	"errors"
	"net/http"
	"time"

	"fbmc-quality/internal/acquire"
	"fbmc-quality/internal/api/middleware"
	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// SeriesHandler serves cached-or-fetched constraint records
type SeriesHandler struct {
	source pipeline.SeriesSource
}

// NewSeriesHandler creates a new series handler
func NewSeriesHandler(source pipeline.SeriesSource) *SeriesHandler {
	return &SeriesHandler{source: source}
}

// GetSeries handles GET /api/v1/series
func (h *SeriesHandler) GetSeries(c *gin.Context) {
	var req models.SeriesRequest
	r, ok := bindRange(c, &req, &req.RangeQuery)
	if !ok {
		return
	}

	series, err := h.source.Acquire(c.Request.Context(), r)
	var failed []time.Time
	if err != nil {
		var acqErr *acquire.AcquisitionError
		if !req.AllowPartial || !errors.As(err, &acqErr) {
			middleware.AbortWithError(c, err)
			return
		}
		series = acqErr.Partial
		for _, f := range acqErr.Failed {
			failed = append(failed, f.Hour)
		}
	}

	records := series.Records
	if req.Cnec != "" {
		records = filterCnec(records, req.Cnec)
	}

	resp := models.SeriesResponse{
		Window:       window(r),
		CacheStatus:  series.Status.String(),
		CachedHours:  len(series.CachedHours),
		FetchedHours: len(series.FetchedHours),
		EmptyHours:   len(series.EmptyHours),
		FailedHours:  failed,
		Persisted:    series.Persisted,
		Count:        len(records),
		Cnecs:        countCnecs(records),
	}
	if req.IncludeRecords == nil || *req.IncludeRecords {
		resp.Records = records
	}
	c.JSON(http.StatusOK, resp)
}

func filterCnec(recs []model.CnecRecord, cnec string) []model.CnecRecord {
	out := []model.CnecRecord{}
	for _, r := range recs {
		if r.CnecID == cnec || r.CnecName == cnec {
			out = append(out, r)
		}
	}
	return out
}

func countCnecs(recs []model.CnecRecord) int {
	seen := map[string]struct{}{}
	for _, r := range recs {
		seen[r.CnecID] = struct{}{}
	}
	return len(seen)
}
