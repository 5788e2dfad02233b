package handlers

import (
	"net/http"

	"fbmc-quality/internal/analysis"
	"fbmc-quality/internal/api/middleware"
	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// VulnerabilityHandler serves per-hour vulnerability of one CNEC
type VulnerabilityHandler struct {
	loader *pipeline.Loader
}

// NewVulnerabilityHandler creates a new vulnerability handler
func NewVulnerabilityHandler(loader *pipeline.Loader) *VulnerabilityHandler {
	return &VulnerabilityHandler{loader: loader}
}

// GetVulnerability handles GET /api/v1/vulnerability
func (h *VulnerabilityHandler) GetVulnerability(c *gin.Context) {
	var req models.VulnerabilityRequest
	r, ok := bindRange(c, &req, &req.RangeQuery)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	loader := withPartial(h.loader, req.AllowPartial)
	ds, err := loader.LoadRange(ctx, r)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	cd, err := loader.ForCnec(ctx, ds, req.Cnec)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	results, err := pipeline.VulnerabilityForCnec(cd)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := models.VulnerabilityResponse{
		CnecID:   cd.CnecID,
		CnecName: cd.CnecName,
		FromZone: cd.FromZone,
		ToZone:   cd.ToZone,
		Window:   window(r),
		Results:  make([]models.VulnerabilityRow, len(results)),
	}
	for i, res := range results {
		resp.Results[i] = toRow(res)
	}
	if sums := analysis.Summarize(results); len(sums) == 1 {
		sums[0].CnecName = cd.CnecName
		resp.Summary = toRanking(0, sums[0])
	}
	c.JSON(http.StatusOK, resp)
}

// withPartial returns loader, or a copy accepting partial data when asked.
func withPartial(loader *pipeline.Loader, allow bool) *pipeline.Loader {
	if !allow || loader.AllowPartial {
		return loader
	}
	l := *loader
	l.AllowPartial = true
	return &l
}
