package handlers

import (
	"net/http"

	"fbmc-quality/internal/api/middleware"
	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/pipeline"

	"github.com/gin-gonic/gin"
)

const defaultRankLimit = 20

// RankHandler handles ranking-related requests
type RankHandler struct {
	loader *pipeline.Loader
}

// NewRankHandler creates a new rank handler
func NewRankHandler(loader *pipeline.Loader) *RankHandler {
	return &RankHandler{loader: loader}
}

// RankCnecs handles GET /api/v1/rank
func (h *RankHandler) RankCnecs(c *gin.Context) {
	var req models.RankRequest
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
	ranked, err := loader.Rank(ctx, ds)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultRankLimit
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}

	rankings := make([]models.Ranking, limit)
	for i, s := range ranked[:limit] {
		rankings[i] = toRanking(i+1, s)
	}
	c.JSON(http.StatusOK, models.RankResponse{
		Window:   window(r),
		Total:    len(ranked),
		Rankings: rankings,
	})
}
