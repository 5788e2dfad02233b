package handlers

import (
	"math"
	"net/http"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/api/middleware"
	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/gin-gonic/gin"
)

// bindRange binds the query into req and parses its range. On failure the
// error response is already written.
func bindRange(c *gin.Context, req interface{}, q *models.RangeQuery) (timeseries.TimeRange, bool) {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return timeseries.TimeRange{}, false
	}
	from, err := timeseries.ParseTime(q.From)
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, "INVALID_DATE", "from: "+err.Error())
		return timeseries.TimeRange{}, false
	}
	to, err := timeseries.ParseTime(q.To)
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, "INVALID_DATE", "to: "+err.Error())
		return timeseries.TimeRange{}, false
	}
	r, err := timeseries.NewRange(from, to)
	if err != nil {
		middleware.AbortWithError(c, err)
		return timeseries.TimeRange{}, false
	}
	return r, true
}

func window(r timeseries.TimeRange) models.TimeWindow {
	return models.TimeWindow{Start: r.From, End: r.To, Hours: r.Len()}
}

func toRanking(rank int, s analysis.CnecSummary) models.Ranking {
	return models.Ranking{
		Rank:              rank,
		CnecID:            s.CnecID,
		CnecName:          s.CnecName,
		Start:             s.StartUTC,
		End:               s.EndUTC,
		Hours:             s.Hours,
		MeanVulnerability: models.Ratio(s.MeanVulnerability),
		MaxVulnerability:  models.Ratio(s.MaxVulnerability),
		MeanMargin:        models.Ratio(s.MeanMargin),
		MeanAbsError:      s.MeanAbsError,
		RMSError:          s.RMSError,
		DegenerateHours:   s.DegenerateHours,
	}
}

func toRow(r model.VulnerabilityResult) models.VulnerabilityRow {
	return models.VulnerabilityRow{
		Time:                   r.Time,
		ObservedFlow:           r.ObservedFlow,
		LinearisedFlow:         r.LinearisedFlow,
		LinearisationError:     r.LinearisationError,
		VulnerabilityScore:     models.Ratio(r.VulnerabilityScore),
		BasecaseRelativeMargin: models.Ratio(r.BasecaseRelativeMargin),
		Degenerate:             math.IsInf(r.VulnerabilityScore, 0) || math.IsInf(r.BasecaseRelativeMargin, 0),
	}
}
