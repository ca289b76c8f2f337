package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models"
	"gohan/variantstore/models/dtos/errors"
	gerrors "gohan/variantstore/models/errors"

	"github.com/labstack/echo"
	pkgerrors "github.com/pkg/errors"
)

/*
Echo middleware to ensure the `study` path parameter names a known study.
The study can be given by id or by name.
*/
func MandateStudyPathParam(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		return resolveStudy(c, c.Param("study"), next)
	}
}

/*
Echo middleware to ensure a valid `study` HTTP query parameter was provided
*/
func MandateStudyAttribute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		return resolveStudy(c, c.QueryParam("study"), next)
	}
}

func resolveStudy(c echo.Context, study string, next echo.HandlerFunc) error {
	gc := c.(*contexts.GohanContext)
	if len(study) == 0 {
		return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("missing study"))
	}

	sc, err := findStudy(gc, study)
	if err != nil {
		if pkgerrors.Is(err, gerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errors.CreateSimpleNotFound(fmt.Sprintf("study %s not found", study)))
		}
		return c.JSON(http.StatusInternalServerError, errors.CreateSimpleInternalServerError(err.Error()))
	}

	// forward a type-safe value down the pipeline
	gc.StudyId = sc.StudyId
	return next(gc)
}

func findStudy(gc *contexts.GohanContext, study string) (*models.StudyConfiguration, error) {
	ctx := gc.Request().Context()
	if id, err := strconv.Atoi(study); err == nil {
		return gc.Engine.Studies().GetStudyConfiguration(ctx, id)
	}
	return gc.Engine.Studies().GetStudyConfigurationByName(ctx, study)
}
