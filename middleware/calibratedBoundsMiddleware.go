package middleware

import (
	"net/http"
	"strconv"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models/dtos/errors"

	"github.com/labstack/echo"
)

// MandateCalibratedBounds reads the optional `start` and `end` query
// parameters. A missing bound is left unbounded (0).
func MandateCalibratedBounds(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		gc := c.(*contexts.GohanContext)

		var (
			lowerBound int
			upperBound int
		)

		// check for a 'start' query paramter
		if startQP := c.QueryParam("start"); len(startQP) > 0 {
			lb, conversionErr := strconv.Atoi(startQP)
			if conversionErr != nil || lb < 0 {
				return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("Invalid 'start' query parameter!"))
			}
			lowerBound = lb
		}

		// check for an 'end' query paramter
		if endQP := c.QueryParam("end"); len(endQP) > 0 {
			ub, conversionErr := strconv.Atoi(endQP)
			if conversionErr != nil || ub < 0 {
				return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("Invalid 'end' query parameter!"))
			}
			upperBound = ub
		}

		if upperBound > 0 && upperBound < lowerBound {
			// if upper bound is less than the lower bound
			return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("Invalid lower and upper bounds!"))
		}

		gc.LowerBound = lowerBound
		gc.UpperBound = upperBound
		return next(gc)
	}
}
