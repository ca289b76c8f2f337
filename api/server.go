package api

import (
	"gohan/variantstore/contexts"
	gam "gohan/variantstore/middleware"
	"gohan/variantstore/models"
	serviceInfoMvc "gohan/variantstore/mvc/service-info"
	studiesMvc "gohan/variantstore/mvc/studies"
	variantsMvc "gohan/variantstore/mvc/variants"
	"gohan/variantstore/services"
	"gohan/variantstore/services/storage"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer wires the routes over the engine and the ingestion service.
// gatherer feeds GET /metrics.
func NewServer(cfg *models.Config, engine *storage.StorageEngine, iz *services.IngestionService, gatherer prometheus.Gatherer) *echo.Echo {
	// Instantiate Server
	e := echo.New()
	e.HideBanner = true

	// Configure Server
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.PUT, echo.POST, echo.DELETE},
	}))

	// -- Override handlers with "custom Gohan" context
	//		to be able to provide variables and global singletons
	e.Use(func(h echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &contexts.GohanContext{
				Context:          c,
				Config:           cfg,
				Engine:           engine,
				IngestionService: iz,
			}
			return h(cc)
		}
	})

	// Begin MVC Routes
	// -- Root
	e.GET("/", serviceInfoMvc.GetWelcome)

	// -- Service Info
	e.GET("/service-info", serviceInfoMvc.GetServiceInfo)

	// -- Metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// -- Studies
	e.GET("/studies", studiesMvc.GetStudies)
	e.GET("/studies/:study", studiesMvc.GetStudy,
		// middleware
		gam.MandateStudyPathParam)
	e.POST("/studies/:study/load", variantsMvc.VariantsIngest,
		// middleware
		gam.MandateStudyPathParam)

	// -- Ingestion
	e.GET("/ingestion/requests", variantsMvc.GetAllVariantIngestionRequests)

	// -- Variants
	e.GET("/variants/overview", variantsMvc.GetVariantsOverview,
		// middleware
		gam.MandateStudyAttribute)
	e.GET("/variants/count", variantsMvc.VariantsCount,
		// middleware
		gam.MandateStudyAttribute,
		gam.ValidateOptionalFileAttribute,
		gam.ValidateOptionalChromosomeAttribute,
		gam.MandateCalibratedBounds)

	return e
}
