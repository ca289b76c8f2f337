package middleware

import (
	"net/http"
	"regexp"

	"gohan/variantstore/contexts"
	"gohan/variantstore/models/dtos/errors"

	"github.com/labstack/echo"
)

var chromosomePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

/*
	Echo middleware to ensure a `chromosome` HTTP query parameter is valid if provided
*/
func ValidateOptionalChromosomeAttribute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		gc := c.(*contexts.GohanContext)

		// check for chromosome query parameter
		chromQP := c.QueryParam("chromosome")
		if len(chromQP) > 0 {
			// verify:
			if !chromosomePattern.MatchString(chromQP) {
				return c.JSON(http.StatusBadRequest, errors.CreateSimpleBadRequest("Invalid 'chromosome' query parameter! Check your input"))
			}
			gc.Chromosome = chromQP
		}

		return next(gc)
	}
}
