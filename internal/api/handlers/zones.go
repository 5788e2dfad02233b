package handlers

import (
	"context"
	"net/http"
	"time"

	"fbmc-quality/internal/api/models"
	"fbmc-quality/internal/cache"
	"fbmc-quality/internal/data"

	"github.com/gin-gonic/gin"
)

// ListZones handles GET /api/v1/zones
func ListZones(zones *data.ZoneTable) gin.HandlerFunc {
	resp := models.ZonesResponse{Region: zones.Region}
	for _, z := range zones.Zones {
		resp.Zones = append(resp.Zones, models.ZoneInfo{
			Code:       z.Code,
			EIC:        z.EIC,
			Neighbours: z.Neighbours,
			Physical:   z.EIC != "",
		})
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, resp)
	}
}

// StatsSource reports cache contents.
type StatsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// Health handles GET /health. The cache being unreachable degrades the
// status but never fails the check; the service still answers uncached.
func Health(stats StatsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "time": time.Now().UTC()}
		if stats == nil {
			body["cache"] = gin.H{"status": "disabled"}
			c.JSON(http.StatusOK, body)
			return
		}
		st, err := stats.Stats(c.Request.Context())
		if err != nil {
			body["status"] = "degraded"
			body["cache"] = gin.H{"status": "unavailable", "error": err.Error()}
			c.JSON(http.StatusOK, body)
			return
		}
		body["cache"] = gin.H{"status": "ok", "stats": st}
		c.JSON(http.StatusOK, body)
	}
}
