// Package api exposes acquisition and vulnerability analysis over HTTP.
package api

import (
	"net/http"

	"fbmc-quality/internal/api/handlers"
	"fbmc-quality/internal/api/middleware"
	"fbmc-quality/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the router serves from. Stats may be nil when the
// cache is disabled.
type Deps struct {
	Loader      *pipeline.Loader
	Stats       handlers.StatsSource
	CORSOrigins []string
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(d.CORSOrigins))

	seriesHandler := handlers.NewSeriesHandler(d.Loader.Series)
	vulnHandler := handlers.NewVulnerabilityHandler(d.Loader)
	rankHandler := handlers.NewRankHandler(d.Loader)

	router.GET("/health", handlers.Health(d.Stats))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/series", seriesHandler.GetSeries)
		api.GET("/vulnerability", vulnHandler.GetVulnerability)
		api.GET("/rank", rankHandler.RankCnecs)
		api.GET("/zones", handlers.ListZones(d.Loader.Zones))
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.URL.Path)
	})
	return router
}
